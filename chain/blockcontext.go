package chain

// shouldEnforceRuntimeLimits is a reserved hook mirroring
// controller.cpp's should_enforce_runtime_limits: in the original it
// gates CPU/net metering during block production. Resource metering
// policy is an explicit Non-goal here, so this always returns false;
// the hook is kept (rather than deleted) as the single place a future
// metering pass would plug into apply_transaction.
func (c *Controller) shouldEnforceRuntimeLimits() bool {
	return false
}
