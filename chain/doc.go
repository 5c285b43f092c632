/*
Package chain implements the Substrate RPC client used to register hotkeys
on a Subtensor subnet.

The client connects to a chain endpoint over websocket, fetches the runtime
metadata and genesis hash once, and then serves three concerns for the
registration loop: reporting the latest block, querying the current recycle
(burn) cost of a subnet, and building, signing and submitting the
`SubtensorModule.burned_register` extrinsic. Extrinsics are signed with the
coldkey using sr25519 and carry a mortal era anchored at the block that
triggered the submission, so a stuck transaction expires instead of
lingering in the pool.

Submission returns a Watcher that follows the extrinsic to a terminal
status. Errors reported by the node are classified with IsRecoverable and
IsAlreadyRegistered so callers can decide whether to retry.
*/
package chain
