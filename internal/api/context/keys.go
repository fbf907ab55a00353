package context

type Key string

const (
	Claims Key = "claims"
	User   Key = "user"
	Tenant Key = "tenant"
	Params Key = "params"
)
