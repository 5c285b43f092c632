/*
Package registration implements the slot-gated registration loop.

Registration on a Subtensor subnet opens in a short window of consecutive
blocks each epoch. The loop polls the latest block and submits a
burned_register extrinsic on every block whose number falls into its
designated slot of the window (block_number % slot_cycle == slot), so that
running one instance per slot covers every block of the window.

Each block is handled at most once, across restarts: the journal keeps a
watermark of the last handled block that is restored on startup. Before
submitting, the loop checks the subnet's current recycle (burn) cost
against the configured maximum and skips blocks that would overpay.
Finalization of submitted extrinsics is watched on background goroutines so
the loop keeps its timing; outcomes are journaled and exported as metrics.
*/
package registration
