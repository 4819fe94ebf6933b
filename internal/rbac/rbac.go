package rbac

type Role string
type Action string

const (
	RoleChair    Role = "chair"
	RoleDelegate Role = "delegate"
)

const (
	ActionRead       Action = "read"
	ActionEdit       Action = "edit"
	ActionComment    Action = "comment"
	ActionLock       Action = "lock"
	ActionTimer      Action = "timer"
	ActionSelectBloc Action = "selectBloc"
	ActionCreateBloc Action = "createBloc"
	ActionSearch     Action = "search"
	ActionExport     Action = "export"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleChair:
		return true
	case RoleDelegate:
		return action == ActionRead || action == ActionEdit || action == ActionCreateBloc || action == ActionExport
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleChair, RoleDelegate:
		return Role(role)
	default:
		return RoleDelegate
	}
}
