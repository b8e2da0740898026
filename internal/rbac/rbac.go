package rbac

type Role string
type View string

const (
	RoleAdmin       Role = "admin"
	RoleOwner       Role = "owner"
	RoleMaintenance Role = "maintenance"
	RoleRenter      Role = "renter"
)

const (
	ViewDashboard  View = "dashboard"
	ViewLeads      View = "leads"
	ViewProperties View = "properties"
	ViewTasks      View = "tasks"
	ViewCalendar   View = "calendar"
	ViewFinance    View = "finance"
	ViewMessages   View = "messages"
	ViewSettings   View = "settings"
)

// PermittedViews returns the views a role may navigate to, in order; the
// first entry doubles as the role's landing view.
func PermittedViews(role Role) []View {
	switch role {
	case RoleAdmin:
		return []View{ViewDashboard, ViewLeads, ViewProperties, ViewTasks, ViewCalendar, ViewFinance, ViewMessages, ViewSettings}
	case RoleOwner:
		return []View{ViewDashboard, ViewProperties, ViewFinance, ViewCalendar, ViewMessages, ViewSettings}
	case RoleMaintenance:
		return []View{ViewDashboard, ViewTasks, ViewCalendar, ViewMessages, ViewSettings}
	case RoleRenter:
		return []View{ViewDashboard, ViewMessages, ViewSettings}
	default:
		return []View{ViewDashboard}
	}
}

func CanView(role Role, view View) bool {
	for _, permitted := range PermittedViews(role) {
		if permitted == view {
			return true
		}
	}
	return false
}

// DefaultView is where a role lands when its current view becomes invalid.
func DefaultView(role Role) View {
	return PermittedViews(role)[0]
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleAdmin, RoleOwner, RoleMaintenance, RoleRenter:
		return Role(role)
	default:
		return RoleAdmin
	}
}

func NormalizeView(view string) View {
	switch View(view) {
	case ViewDashboard, ViewLeads, ViewProperties, ViewTasks, ViewCalendar, ViewFinance, ViewMessages, ViewSettings:
		return View(view)
	default:
		return ViewDashboard
	}
}
