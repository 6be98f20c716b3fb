package models

// Details is the static description of a tracked asset, refreshed on every
// fetch but not part of any time series.
type Details struct {
	ID       ID       `json:"id"`
	Name     string   `json:"name"`
	Symbol   string   `json:"symbol"`
	Issuer   string   `json:"issuer,omitempty"`
	Homepage string   `json:"homepage,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// EntityDetails describes an organization associated with assets via a role.
type EntityDetails struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Role   string   `json:"role,omitempty"`
	Assets []ID     `json:"assets,omitempty"`
	Tags   []string `json:"tags,omitempty"`
}

// SystemDetails describes a chain or ledger that hosts assets. Family picks
// the chain module used to query it; Endpoints are its RPC or API URLs.
type SystemDetails struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Family    string   `json:"family,omitempty"`
	Endpoints []string `json:"endpoints,omitempty"`
}
