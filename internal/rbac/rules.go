package rbac

// Permissions.
const (
	PermExamView           = "exam:view"
	PermExamTake           = "exam:take"
	PermExamManage         = "exam:manage"
	PermQuestionManage     = "question:manage"
	PermResultsViewOwn     = "results:view-own"
	PermResultsViewChild   = "results:view-children"
	PermResultsViewAll     = "results:view-all"
	PermGradingGrade       = "grading:grade"
	PermReportsView        = "reports:view"
	PermSettingsManage     = "settings:manage"
	PermUsersList          = "users:list"
	PermUsersBulkUpsert    = "users:bulk_upsert"
	PermUsersManage        = "users:manage"
	PermUserChangePassword = "user:change_password"
	PermEventsView         = "events:view"
)

// RolePermissions is the default policy. Admins hold every permission.
var RolePermissions = map[string][]string{
	"student": {
		PermExamView,
		PermExamTake,
		PermResultsViewOwn,
		PermUserChangePassword,
	},
	"parent": {
		PermExamView,
		PermResultsViewChild,
		PermUserChangePassword,
	},
	"teacher": {
		PermExamView,
		PermExamManage,
		PermQuestionManage,
		PermResultsViewAll,
		PermGradingGrade,
		PermReportsView,
		PermUsersList,
		PermUserChangePassword,
	},
	"admin": {
		"*",
	},
}
