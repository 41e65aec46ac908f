package rbac

type Role string
type Action string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
)

const (
	ActionRead     Action = "read"
	ActionInteract Action = "interact"
	ActionWrite    Action = "write"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleEditor:
		return action == ActionRead || action == ActionInteract || action == ActionWrite
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

// ForReadonly returns the consumer role of a server started with or
// without --readonly.
func ForReadonly(readonly bool) Role {
	if readonly {
		return RoleViewer
	}
	return RoleEditor
}

// CommandAction classifies an inbound consumer socket command. Unknown
// commands need write access.
func CommandAction(cmd string) Action {
	switch cmd {
	case "forward_to_vis":
		return ActionInteract
	default:
		return ActionWrite
	}
}
