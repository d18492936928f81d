package dto

// BlockRequest is the operator payload for blocking an address.
type BlockRequest struct {
	IP     string `json:"ip"`
	Reason string `json:"reason"`
}

// BlockResult reports whether the call created a new entry; blocking an
// already-blocked address succeeds without one.
type BlockResult struct {
	IP      string `json:"ip"`
	Created bool   `json:"created"`
}
