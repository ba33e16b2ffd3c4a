package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fengailin/qwen-ocr/internal/accounts"
	"github.com/fengailin/qwen-ocr/internal/api"
	"github.com/fengailin/qwen-ocr/internal/auth"
	"github.com/fengailin/qwen-ocr/internal/svcctx"
)

// LoginRequest is the request body for account sign-in.
type LoginRequest struct {
	Username         string `json:"username"`
	Password         string `json:"password"`
	IsPasswordHashed bool   `json:"is_password_hashed"`
}

// LoginResponse reports the outcome of a sign-in attempt. PasswordHash
// is returned when a raw password was supplied so callers can store
// the hash instead.
type LoginResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	Token        string `json:"token,omitempty"`
	Cookie       string `json:"cookie,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	PasswordHash string `json:"password_hash,omitempty"`
}

// AccountListResponse lists configured accounts without credentials.
type AccountListResponse struct {
	Accounts []accounts.Account `json:"accounts"`
}

// LoginEndpoint handles POST /api/auth/login.
type LoginEndpoint struct{}

func (e *LoginEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/auth/login", e.handler
}

func (e *LoginEndpoint) RequiresInit() bool { return true }

func (e *LoginEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	hashed := req.Password
	if !req.IsPasswordHashed {
		hashed = auth.HashPassword(req.Password)
	}

	session := svcctx.AuthFrom(r.Context())
	token, cookie, expiresAt, err := session.Signin(r.Context(), req.Username, hashed, true)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, LoginResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}

	resp := LoginResponse{
		Success:   true,
		Message:   "sign-in succeeded",
		Token:     token,
		Cookie:    cookie,
		ExpiresAt: expiresAt,
	}
	if !req.IsPasswordHashed {
		resp.PasswordHash = hashed
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *LoginEndpoint) Command(getServerURL func() string) *cobra.Command {
	var password string
	var hashed bool
	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Sign in an account and store its credentials on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				fmt.Print("Password: ")
				raw, err := term.ReadPassword(int(syscall.Stdin))
				fmt.Println()
				if err != nil {
					return err
				}
				password = string(raw)
			}
			client := api.NewClient(getServerURL())
			var resp LoginResponse
			req := LoginRequest{Username: args[0], Password: password, IsPasswordHashed: hashed}
			if err := client.Post(cmd.Context(), "/api/auth/login", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted when omitted)")
	cmd.Flags().BoolVar(&hashed, "hashed", false, "Treat the password as already hashed")
	return cmd
}

// EnableAccountEndpoint handles POST /api/auth/enable/{username}.
type EnableAccountEndpoint struct{}

func (e *EnableAccountEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/auth/enable/{username}", e.handler
}

func (e *EnableAccountEndpoint) RequiresInit() bool { return true }

func (e *EnableAccountEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	setAccountEnabled(w, r, true)
}

func (e *EnableAccountEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "enable <username>",
		Short: "Enable an account for recognition requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp map[string]any
			if err := client.Post(cmd.Context(), "/api/auth/enable/"+args[0], nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// DisableAccountEndpoint handles POST /api/auth/disable/{username}.
type DisableAccountEndpoint struct{}

func (e *DisableAccountEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/auth/disable/{username}", e.handler
}

func (e *DisableAccountEndpoint) RequiresInit() bool { return true }

func (e *DisableAccountEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	setAccountEnabled(w, r, false)
}

func (e *DisableAccountEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <username>",
		Short: "Disable an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp map[string]any
			if err := client.Post(cmd.Context(), "/api/auth/disable/"+args[0], nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

func setAccountEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	username := r.PathValue("username")
	if username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	store := svcctx.AccountsFrom(r.Context())
	if _, err := store.ByUsername(username); err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("account %q not found", username))
		return
	}

	action := "disabled"
	if enabled {
		store.EnableAccount(username)
		action = "enabled"
	} else {
		store.DisableAccount(username)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("account %q %s", username, action),
	})
}

// ListAccountsEndpoint handles GET /api/auth/accounts.
type ListAccountsEndpoint struct{}

func (e *ListAccountsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/auth/accounts", e.handler
}

func (e *ListAccountsEndpoint) RequiresInit() bool { return true }

func (e *ListAccountsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	store := svcctx.AccountsFrom(r.Context())
	// Account's JSON encoding omits credentials, so the list is safe
	// to return verbatim.
	writeJSON(w, http.StatusOK, AccountListResponse{Accounts: store.Accounts()})
}

func (e *ListAccountsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List configured accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp AccountListResponse
			if err := client.Get(cmd.Context(), "/api/auth/accounts", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
