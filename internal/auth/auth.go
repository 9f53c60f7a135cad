package auth

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

const credentialDir = ".image-localizer"

// Providers with a known credential source.
const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

// EnvVar returns the environment variable holding the provider's API key.
func EnvVar(provider string) string {
	switch strings.ToLower(provider) {
	case ProviderGemini:
		return "GEMINI_API_KEY"
	default:
		return "OPENROUTER_API_KEY"
	}
}

// GetAPIKey retrieves the provider's API key from available sources.
// Priority order:
//  1. OPENROUTER_API_KEY or GEMINI_API_KEY environment variable
//  2. GPG-encrypted file at ~/.image-localizer/<provider>.gpg
func GetAPIKey(provider string) (string, error) {
	envVar := EnvVar(provider)
	if key := strings.TrimSpace(os.Getenv(envVar)); key != "" {
		log.Debug().Str("provider", provider).Msg("Using API key from environment variable")
		return key, nil
	}

	key, err := getFromGPG(provider)
	if err == nil && key != "" {
		log.Debug().Str("provider", provider).Msg("Using API key from GPG encrypted file")
		return key, nil
	}

	log.Debug().Err(err).Str("provider", provider).Msg("No API key source available")
	return "", &ValidationError{
		Type:    ErrTypeNoKey,
		Message: fmt.Sprintf("API key not found. Set %s or store it GPG-encrypted in ~/%s/%s.gpg", envVar, credentialDir, normalizeProvider(provider)),
		Err:     err,
	}
}

func normalizeProvider(provider string) string {
	if strings.ToLower(provider) == ProviderGemini {
		return ProviderGemini
	}
	return ProviderOpenRouter
}

// getFromGPG decrypts the API key from the GPG-encrypted credentials file.
func getFromGPG(provider string) (string, error) {
	credPath, err := getCredentialPath(provider)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(credPath); os.IsNotExist(err) {
		return "", fmt.Errorf("GPG credentials file not found at %s", credPath)
	}

	log.Debug().Str("file", credPath).Msg("Decrypting GPG credentials")

	// Build GPG command with optional passphrase file for non-interactive use
	args := []string{"--decrypt", "--quiet"}

	passphrasePath, err := getPassphrasePath()
	if err == nil {
		fi, statErr := os.Stat(passphrasePath)
		if statErr == nil {
			// passphrase file must be owner-only
			mode := fi.Mode().Perm()
			if mode&0077 != 0 {
				log.Warn().
					Str("passphrase_file", passphrasePath).
					Str("permissions", fmt.Sprintf("%04o", mode)).
					Msg("Passphrase file has insecure permissions (should be 0600); skipping")
			} else {
				log.Debug().Str("passphrase_file", passphrasePath).Msg("Using passphrase file for GPG decryption")
				args = append(args, "--pinentry-mode", "loopback", "--passphrase-file", passphrasePath)
			}
		}
	}

	args = append(args, credPath)
	cmd := exec.Command("gpg", args...)
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("GPG decryption failed: %s", string(exitErr.Stderr))
		}
		return "", fmt.Errorf("GPG decryption failed: %w", err)
	}

	return strings.TrimSpace(string(output)), nil
}

// getCredentialPath returns the full path to the provider's credentials file.
func getCredentialPath(provider string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(home, credentialDir, normalizeProvider(provider)+".gpg"), nil
}

// getPassphrasePath returns the path to the GPG passphrase file in the project directory.
// This allows non-interactive GPG decryption when running in automated environments.
func getPassphrasePath() (string, error) {
	// Get the executable's directory to find .gpg-passphrase relative to project
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}

	// Check in the same directory as the executable
	exeDir := filepath.Dir(exe)
	passphrasePath := filepath.Join(exeDir, ".gpg-passphrase")
	if _, err := os.Stat(passphrasePath); err == nil {
		return passphrasePath, nil
	}

	// Also check current working directory (for development)
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	passphrasePath = filepath.Join(cwd, ".gpg-passphrase")
	return passphrasePath, nil
}
