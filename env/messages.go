package env

// Diagnostic message templates.
const (
	msgCannotRedeclareClass    = "Cannot redeclare class %s"
	msgCannotRedeclareFunction = "Cannot redeclare %s()"
	msgCannotRedeclareConstant = "Constant %s already defined"
	msgClassNotFound           = "Class '%s' not found"
	msgClassInitFailed         = "Cannot initialize class %s: %v"
	msgUndefinedConstant       = "Use of undefined constant %s - assumed '%s'"
	msgIncludeFailed           = "%s(): Failed opening '%s' for inclusion (include_path='%s')"
	msgRequireFailed           = "%s(): Failed opening required '%s' (include_path='%s')"
	msgModuleCompileFailed     = "%s(): %v"
	msgParentNoScope           = "Cannot access parent:: when no class scope is active"
	msgParentNoParent          = "Cannot access parent:: when current class scope has no parent"
	msgThrowNonObject          = "Can only throw objects"
	msgThrowNotException       = "Exceptions must be valid objects derived from the Exception base class"
)
