package authz

// Builtin permission names referenced by handlers. The catalog is upserted
// at startup and may be extended per deployment.
const (
	PermManageTenants    = "platform.tenant.manage"
	PermManagePrincipals = "identity.principal.manage"
	PermManageGrants     = "identity.grant.manage"
	PermManagePrograms   = "compliance.program.manage"
	PermManageTasks      = "compliance.task.manage"
	PermManageModules    = "training.module.manage"
	PermManageEnrollment = "training.enrollment.manage"
	PermReadAudit        = "platform.audit.read"
)

// BuiltinPermissions is ensured at startup so a fresh database can authorize
// the seed administrator before any seed file runs.
var BuiltinPermissions = []Permission{
	{Name: PermManageTenants, Description: "Provision and update tenants", Category: "platform", Resource: "tenant", Action: "manage"},
	{Name: PermManagePrincipals, Description: "Provision and update principals", Category: "identity", Resource: "principal", Action: "manage"},
	{Name: PermManageGrants, Description: "Grant and revoke permissions", Category: "identity", Resource: "grant", Action: "manage"},
	{Name: PermManagePrograms, Description: "Manage compliance programs", Category: "compliance", Resource: "program", Action: "manage"},
	{Name: PermManageTasks, Description: "Manage compliance tasks", Category: "compliance", Resource: "task", Action: "manage"},
	{Name: PermManageModules, Description: "Manage training modules", Category: "training", Resource: "module", Action: "manage"},
	{Name: PermManageEnrollment, Description: "Manage training enrollments", Category: "training", Resource: "enrollment", Action: "manage"},
	{Name: PermReadAudit, Description: "Read the tenant audit trail", Category: "platform", Resource: "audit", Action: "read"},
}
