package allocation

// =============================================================================
// ACTOR CONTEXT - Who is acting, under which policy
// =============================================================================

// ActorContext carries the identity and policy of the current caller. It is
// passed explicitly into every engine call; the engine holds no ambient
// request state.
type ActorContext struct {
	Username string
	Policy   Policy
}

// SystemUsername is recorded on assignments mutated by event-driven triggers
// rather than a human caller.
const SystemUsername = "SYS"

// SystemActor returns the actor used by event handlers (release, transfer,
// merge, staff status change) where no user is present.
func SystemActor(policy Policy) ActorContext {
	return ActorContext{Username: SystemUsername, Policy: policy}
}
