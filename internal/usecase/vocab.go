package usecase

import "strings"

// ActionVerbs are base-form verbs recognized as user or system actions.
var ActionVerbs = []string{
	"login", "logout", "log", "register", "sign", "signup", "authenticate",
	"search", "browse", "view", "find", "filter", "sort", "compare",
	"add", "remove", "delete", "create", "update", "edit", "modify", "change",
	"save", "submit", "upload", "download", "export", "import", "share",
	"send", "receive", "pay", "purchase", "buy", "checkout", "order",
	"cancel", "book", "reserve", "schedule", "approve", "reject", "review",
	"rate", "comment", "post", "publish", "select", "manage", "configure",
	"customize", "assign", "track", "monitor", "report", "generate", "print",
	"notify", "subscribe", "unsubscribe", "invite", "join", "follow", "message",
	"chat", "reset", "verify", "validate", "authorize", "access", "archive",
	"restore", "backup", "sync", "transfer", "withdraw", "deposit", "refund",
	"request", "apply", "enroll", "check", "calculate", "analyze", "process",
	"confirm", "display", "retrieve", "store", "play", "stream", "install",
	"connect", "scan", "rent", "return",
}

// Actors are nouns recognized as participants in a use case.
var Actors = []string{
	"user", "admin", "administrator", "customer", "system", "manager",
	"employee", "student", "teacher", "instructor", "guest", "visitor",
	"member", "owner", "buyer", "seller", "vendor", "client", "patient",
	"doctor", "staff", "operator", "developer", "author", "editor",
	"reviewer", "moderator", "driver", "passenger", "librarian",
}

// SecurityCategories groups security-relevant keyword stems. A category
// counts once no matter how many of its stems appear.
var SecurityCategories = map[string][]string{
	"authentication": {"authenticat", "login", "log in", "credential", "password", "sign in"},
	"authorization":  {"authoriz", "permission", "role", "access control", "privilege"},
	"encryption":     {"encrypt", "https", "tls", "ssl", "hash"},
	"validation":     {"validat", "sanitiz", "verify", "verif"},
	"auditing":       {"audit", "logged", "logs the"},
	"session":        {"session", "token", "timeout", "expire"},
	"secrecy":        {"secure", "security", "confidential", "privacy"},
	"protection":     {"lockout", "rate limit", "captcha", "two-factor", "2fa", "mfa"},
}

var verbSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(ActionVerbs))
	for _, v := range ActionVerbs {
		m[v] = struct{}{}
	}
	return m
}()

// IsActionVerb reports whether word is one of ActionVerbs.
func IsActionVerb(word string) bool {
	_, ok := verbSet[strings.ToLower(word)]
	return ok
}

// ContainsVerb reports whether lowered text contains any action verb as a
// substring.
func ContainsVerb(lowered string) bool {
	for _, v := range ActionVerbs {
		if strings.Contains(lowered, v) {
			return true
		}
	}
	return false
}

// ContainsActor reports whether lowered text contains any actor as a
// substring.
func ContainsActor(lowered string) bool {
	for _, a := range Actors {
		if strings.Contains(lowered, a) {
			return true
		}
	}
	return false
}

// Capitalize upper-cases the first byte of s.
func Capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
