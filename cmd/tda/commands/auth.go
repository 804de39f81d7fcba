package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/quantbridge/tda/internal/tda"
)

var authFlags struct {
	listen string
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "OAuth token management",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Run the browser OAuth flow and persist tokens",
	Run:   runAuthLogin,
}

var authRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force an access token refresh",
	Run:   runAuthRefresh,
}

func init() {
	authLoginCmd.Flags().StringVar(&authFlags.listen, "listen", "localhost:8080", "callback listen address")
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authRefreshCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) {
	a, err := newApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer a.close()

	fmt.Println("Open this URL in your browser and authorize the application:")
	fmt.Println()
	fmt.Println("  " + tda.GetSignInURL(a.cfg.TDA.ConsumerKey))
	fmt.Println()
	fmt.Printf("Waiting for the redirect on http://%s ...\n", authFlags.listen)

	codeCh := make(chan string, 1)

	router := mux.NewRouter()
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code parameter", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "Authorization received, you can close this window.")
		codeCh <- code
	}).Methods(http.MethodGet)

	server := &http.Server{Addr: authFlags.listen, Handler: router}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.WithError(err).Fatal("Callback server failed")
		}
	}()

	var code string
	select {
	case code = <-codeCh:
	case <-time.After(5 * time.Minute):
		a.logger.Fatal("Timed out waiting for the OAuth redirect")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	pair, err := a.client.ExchangeAuthCode(context.Background(), code)
	if err != nil {
		a.logger.WithError(err).Fatal("Authorization code exchange failed")
	}

	a.logger.Info("Tokens obtained and persisted")
	fmt.Println("Refresh token (set TDA_REFRESH_TOKEN to reuse across machines):")
	fmt.Println(pair.RefreshToken)
}

func runAuthRefresh(cmd *cobra.Command, args []string) {
	a, err := newApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer a.close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := a.client.RefreshAccessToken(ctx); err != nil {
		a.logger.WithError(err).Fatal("Token refresh failed")
	}
	a.logger.Info("Access token refreshed")
}
