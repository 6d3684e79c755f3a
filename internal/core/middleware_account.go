package core

import (
	"net/http"
	"strings"

	"cropcare/internal/types"
)

// AccountHeader carries the caller's account identifier. Identity is
// established upstream (the gateway in front of the API); this service only
// scopes data by the value it forwards.
const AccountHeader = "X-Account-Id"

// maxAccountIDLength bounds the header value stored in logs and queries.
const maxAccountIDLength = 128

// AccountMiddleware copies a well-formed X-Account-Id header into the
// request context. Requests without one continue anonymously; handlers that
// need an account call RequireAccount.
func AccountMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account := strings.TrimSpace(r.Header.Get(AccountHeader))
		if account == "" || len(account) > maxAccountIDLength || strings.ContainsAny(account, " \t\r\n") {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(types.WithAccount(r.Context(), account)))
	})
}

// RequireAccount returns the account from the context or an
// auth_account_missing error.
func RequireAccount(r *http.Request) (string, error) {
	account, ok := types.GetAccount(r.Context())
	if !ok {
		return "", types.NewAppError(types.ErrCodeAuthAccountMissing, AccountHeader+" header is required", nil)
	}
	return account, nil
}
