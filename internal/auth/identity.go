package auth

// CredentialKind identifies the path a user authenticated through.
type CredentialKind string

const (
	KindPhone  CredentialKind = "phone"
	KindGoogle CredentialKind = "google"
	KindApple  CredentialKind = "apple"
)

// Badge names the verification a credential kind grants an account.
// Badge returns "" for unknown kinds.
func (k CredentialKind) Badge() string {
	switch k {
	case KindPhone:
		return "PHONE"
	case KindGoogle:
		return "GOOGLE"
	case KindApple:
		return "APPLE"
	default:
		return ""
	}
}

// ExternalIdentity is a verified identity extracted from a credential.
// Subject is the stable external identifier for Kind (E.164 phone number,
// Google sub, or Apple sub). Email, Name, and Picture are optional hints
// used for account linking and seeding.
type ExternalIdentity struct {
	Kind    CredentialKind
	Subject string
	Email   string
	Name    string
	Picture string
}
