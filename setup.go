package main

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/raine/landadmin/config"
	"github.com/raine/landadmin/internal/api"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginBottom(1)
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)
	pathStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

// isInteractiveTerminal returns true if both stdin and stdout are TTYs.
func isInteractiveTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// runSetupWizard asks for the backend address, generates the storage key and
// saves both to the config file. Returns true if the command should continue.
func runSetupWizard() bool {
	fmt.Println()
	fmt.Println(titleStyle.Render("Land Admin Console - First-time Setup"))

	baseURL := os.Getenv("LANDADMIN_API_BASE_URL")
	if baseURL == "" {
		baseURL = api.DefaultBaseURL
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("API address").
				Description("Origin of the land administration backend, e.g. https://lands.example.com").
				Value(&baseURL).
				Validate(validateBaseURL),
		),
	).WithTheme(huh.ThemeBase16())

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("\nSetup cancelled.")
			return false
		}
		fmt.Printf("\nError: %v\n", err)
		return false
	}

	values := map[string]string{
		"LANDADMIN_API_BASE_URL": strings.TrimRight(baseURL, "/"),
		"LANDADMIN_TOKEN_KEY":    generateTokenKey(),
	}
	configPath, err := config.WriteEnvFile(values)
	if err != nil {
		fmt.Printf("\nError saving configuration: %v\n", err)
		waitOnWindows()
		return false
	}
	for k, v := range values {
		os.Setenv(k, v)
	}

	fmt.Println()
	fmt.Println(successStyle.Render("✓ Configuration saved"))
	fmt.Println(pathStyle.Render("  " + configPath))
	fmt.Println()
	return true
}

// promptCredentials asks for the login credentials, prefilling username.
func promptCredentials(username string) (string, string, error) {
	var password string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Username").
				Value(&username).
				Validate(required("username")),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&password).
				Validate(required("password")),
		),
	).WithTheme(huh.ThemeBase16())

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", "", errors.New("login cancelled")
		}
		return "", "", err
	}
	return strings.TrimSpace(username), password, nil
}

func required(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}

func validateBaseURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return errors.New("not a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must start with http:// or https://")
	}
	if u.Host == "" {
		return errors.New("host is missing")
	}
	return nil
}

func generateTokenKey() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("landadmin-%d", time.Now().UnixNano())
	}
	return base64.URLEncoding.EncodeToString(b)
}
