package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/joho/godotenv"
)

// SecretGetter is the subset of the Secrets Manager API used to seed the environment.
type SecretGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// EnvReport describes what LoadEnvironment applied.
type EnvReport struct {
	SecretID       string
	SecretsApplied int
	DotEnvFile     string
}

// LoadEnvironment seeds the process environment before configuration is read.
// A JSON secret named by AWS_SECRETS_MANAGER_SECRET_ID (or AWS_SECRET_ID) is
// applied first, then envFile (or ENV_FILE_PATH, falling back to ./.env).
// godotenv never overrides variables that are already set.
//
// A failed secret fetch is returned alongside the report; the .env file is
// still loaded so local development keeps working.
func LoadEnvironment(ctx context.Context, envFile string) (EnvReport, error) {
	var report EnvReport

	secretErr := func() error {
		secretID := firstEnv("AWS_SECRETS_MANAGER_SECRET_ID", "AWS_SECRET_ID")
		if secretID == "" {
			return nil
		}
		report.SecretID = secretID

		cfg, err := loadAWSConfig(ctx, os.Getenv("AWS_SECRETS_MANAGER_REGION"))
		if err != nil {
			return fmt.Errorf("loading AWS config: %w", err)
		}

		applied, err := ApplySecret(ctx, secretsmanager.NewFromConfig(cfg), secretID,
			os.Getenv("AWS_SECRETS_MANAGER_VERSION_STAGE"),
			strings.EqualFold(os.Getenv("AWS_SECRETS_MANAGER_OVERWRITE"), "true"))
		report.SecretsApplied = applied
		return err
	}()

	if v := os.Getenv("ENV_FILE_PATH"); v != "" {
		envFile = v
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err == nil {
			report.DotEnvFile = envFile
		}
	}
	if report.DotEnvFile == "" {
		if err := godotenv.Load(); err == nil {
			report.DotEnvFile = ".env"
		}
	}

	return report, secretErr
}

// ApplySecret fetches secretID and exports each top-level key of its JSON
// payload as an environment variable. Existing variables are kept unless
// overwrite is set. Returns the number of variables written.
func ApplySecret(ctx context.Context, client SecretGetter, secretID, versionStage string, overwrite bool) (int, error) {
	if versionStage == "" {
		versionStage = "AWSCURRENT"
	}

	output, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(secretID),
		VersionStage: aws.String(versionStage),
	})
	if err != nil {
		return 0, fmt.Errorf("fetching secret %s: %w", secretID, err)
	}

	var payload string
	switch {
	case output.SecretString != nil:
		payload = *output.SecretString
	case len(output.SecretBinary) > 0:
		payload = string(output.SecretBinary)
	default:
		return 0, fmt.Errorf("secret %s has no payload", secretID)
	}

	var kv map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &kv); err != nil {
		return 0, fmt.Errorf("parsing secret %s as JSON: %w", secretID, err)
	}

	applied := 0
	for key, val := range kv {
		if !overwrite && os.Getenv(key) != "" {
			continue
		}
		if err := os.Setenv(key, fmt.Sprint(val)); err != nil {
			return applied, fmt.Errorf("setting env %s from secret: %w", key, err)
		}
		applied++
	}

	return applied, nil
}

func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	if region != "" {
		return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	}
	return awsconfig.LoadDefaultConfig(ctx)
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
