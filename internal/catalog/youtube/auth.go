package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/vidgrab/internal/output"
	"github.com/tanq16/vidgrab/internal/utils"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const readOnlyScope = "https://www.googleapis.com/auth/youtube.readonly"

// AccessTokenFromCredentials runs the installed-app OAuth flow for the client
// secret in credentialsFile, caching the token in tokenFile between runs.
func AccessTokenFromCredentials(ctx context.Context, credentialsFile, tokenFile string) (string, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", fmt.Errorf("unable to read credentials file: %v", err)
	}
	log.Debug().Str("op", "youtube/auth").Msgf("using credentials from %s", credentialsFile)
	config, err := google.ConfigFromJSON(b, readOnlyScope)
	if err != nil {
		log.Error().Str("op", "youtube/auth").Msgf("unable to parse client secret file: %v", err)
		return "", fmt.Errorf("unable to parse client secret file: %v", err)
	}

	token, err := getOAuthToken(ctx, config, tokenFile)
	if err != nil {
		return "", fmt.Errorf("unable to get OAuth token: %v", err)
	}
	if !token.Valid() {
		if token.RefreshToken == "" {
			return "", errors.New("OAuth token is expired and cannot be refreshed")
		}
		newToken, err := config.TokenSource(ctx, token).Token()
		if err != nil {
			return "", fmt.Errorf("unable to refresh token: %v", err)
		}
		token = newToken
		if err := saveToken(tokenFile, token); err != nil {
			log.Warn().Str("op", "youtube/auth").Msgf("unable to save refreshed token: %v", err)
		}
	}
	return token.AccessToken, nil
}

func getOAuthToken(ctx context.Context, config *oauth2.Config, tokenFile string) (*oauth2.Token, error) {
	token, err := tokenFromFile(tokenFile)
	if err == nil {
		log.Debug().Str("op", "youtube/auth").Msg("existing token retrieved")
		return token, nil
	}
	log.Debug().Str("op", "youtube/auth").Msg("no cached token, starting OAuth flow")
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	output.PrintDetail("\nVisit this URL to authorize read access to YouTube:\n")
	fmt.Printf("%s\n", authURL)
	output.PrintDetail("\nAfter authorizing, enter the authorization code:")
	var authCode string
	if _, err := fmt.Scan(&authCode); err != nil {
		return nil, fmt.Errorf("unable to read authorization code: %v", err)
	}
	token, err = config.Exchange(ctx, authCode)
	if err != nil {
		return nil, fmt.Errorf("unable to exchange auth code for token: %v", err)
	}
	if err := saveToken(tokenFile, token); err != nil {
		log.Warn().Str("op", "youtube/auth").Msgf("unable to save new token: %v", err)
	}
	if !utils.GlobalDebugFlag {
		output.ClearLines(6 + len(authURL)/output.TerminalWidth() + 1)
	}
	return token, nil
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, err
	}
	return token, nil
}

func saveToken(file string, token *oauth2.Token) error {
	dir := filepath.Dir(file)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("unable to create token directory: %v", err)
		}
	}
	f, err := os.OpenFile(file, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %v", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("unable to encode token: %v", err)
	}
	return nil
}
