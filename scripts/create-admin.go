package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/dom/learnhub-api/internal/config"
	"github.com/dom/learnhub-api/internal/domain"
	"github.com/dom/learnhub-api/internal/repository/postgres"
	"gorm.io/gorm/logger"
)

type RegisterResponse struct {
	User struct {
		ID          string `json:"id"`
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
	} `json:"user"`
	AccessToken string `json:"accessToken"`
}

var errEmailTaken = errors.New("email already registered")

func registerUser(apiBase, email, displayName, password string) (*RegisterResponse, error) {
	body, _ := json.Marshal(map[string]string{
		"email":       email,
		"displayName": displayName,
		"password":    password,
	})

	resp, err := http.Post(apiBase+"/auth/register", "application/json", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return nil, errEmailTaken
	}
	if resp.StatusCode != http.StatusCreated {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("registration failed (%d): %s", resp.StatusCode, string(bodyBytes))
	}

	var result RegisterResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode failed: %w", err)
	}
	return &result, nil
}

func main() {
	apiBase := flag.String("api", "http://localhost:9999/api/v1", "API base URL")
	email := flag.String("email", "admin@learnhub.local", "admin email")
	name := flag.String("name", "Administrator", "admin display name")
	password := flag.String("password", "", "admin password (8-72 characters)")
	flag.Parse()

	if *password == "" {
		fmt.Fprintln(os.Stderr, "-password is required")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Registering %s...\n", *email)
	_, err = registerUser(*apiBase, *email, *name, *password)
	switch {
	case errors.Is(err, errEmailTaken):
		fmt.Println("  - already registered, promoting existing account")
	case err != nil:
		fmt.Fprintf(os.Stderr, "Failed to register: %v\n", err)
		os.Exit(1)
	default:
		fmt.Println("  ✓ registered")
	}

	// Roles are not exposed over the API, so promotion goes straight to the database.
	db, err := postgres.NewConnection(cfg.DatabaseURL, logger.Warn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}

	result := db.Model(&domain.User{}).
		Where("email = ?", strings.ToLower(strings.TrimSpace(*email))).
		Update("role", domain.RoleAdmin)
	if result.Error != nil {
		fmt.Fprintf(os.Stderr, "Failed to promote user: %v\n", result.Error)
		os.Exit(1)
	}
	if result.RowsAffected == 0 {
		fmt.Fprintf(os.Stderr, "No user with email %s\n", *email)
		os.Exit(1)
	}
	fmt.Println("  ✓ promoted to ADMIN")

	fmt.Println("\nExisting sessions pick up the role on their next request. To log in:")
	fmt.Printf("  curl -X POST %s/auth/login -d '{\"email\":%q,\"password\":\"...\"}'\n", *apiBase, *email)
}
