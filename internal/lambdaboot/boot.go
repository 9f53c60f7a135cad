// Package lambdaboot provides the shared Lambda cold-start bootstrap logic.
//
// The localize Lambda needs AWS config, S3, an SSM parameter fetch for the
// provider API key, and startup logging. The helpers here keep its init()
// a short composition.
package lambdaboot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/image-localizer/internal/auth"
	"github.com/fpang/image-localizer/internal/logging"
)

// APIKeyParamEnvVar overrides the SSM parameter holding the provider key.
const APIKeyParamEnvVar = "SSM_API_KEY_PARAM"

// AWSClients holds the core AWS SDK clients.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// S3Clients holds S3 client, presigner, and bucket name.
type S3Clients struct {
	Client    *s3.Client
	Presigner *s3.PresignClient
	Bucket    string
}

// ParameterGetter is the subset of the SSM client used to load secrets.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// InitAWS loads the default AWS config and returns it along with common clients.
func InitAWS() AWSClients {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}
}

// InitS3 creates an S3 client, presigner, and reads the bucket name from the
// given environment variable. Fatals if the env var is empty.
func InitS3(cfg aws.Config, bucketEnvVar string) S3Clients {
	clients := InitS3Optional(cfg, bucketEnvVar)
	if clients.Bucket == "" {
		log.Fatal().Str("envVar", bucketEnvVar).Msg("Bucket environment variable is required")
	}
	return clients
}

// InitS3Optional is InitS3 without the bucket requirement. Bucket is empty
// when the env var is unset.
func InitS3Optional(cfg aws.Config, bucketEnvVar string) S3Clients {
	client := s3.NewFromConfig(cfg)
	return S3Clients{
		Client:    client,
		Presigner: s3.NewPresignClient(client),
		Bucket:    os.Getenv(bucketEnvVar),
	}
}

// APIKeyParam returns the SSM parameter name for the provider's key.
func APIKeyParam(provider string) string {
	if name := os.Getenv(APIKeyParamEnvVar); name != "" {
		return name
	}
	if provider == "" {
		provider = auth.ProviderOpenRouter
	}
	return fmt.Sprintf("/image-localizer/prod/%s-api-key", provider)
}

// LoadAPIKey fetches the provider API key from SSM Parameter Store unless
// the provider's env var is already set, and exports it to that env var so
// the auth package picks it up. It returns the parameter name read, or ""
// when the environment already carried a key.
func LoadAPIKey(ctx context.Context, client ParameterGetter, provider string) (string, error) {
	envVar := auth.EnvVar(provider)
	if os.Getenv(envVar) != "" {
		return "", nil
	}

	paramName := APIKeyParam(provider)
	start := time.Now()
	result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(paramName),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return paramName, fmt.Errorf("read %s from SSM: %w", paramName, err)
	}
	if result.Parameter == nil || aws.ToString(result.Parameter.Value) == "" {
		return paramName, errors.New("SSM parameter " + paramName + " is empty")
	}
	if err := os.Setenv(envVar, aws.ToString(result.Parameter.Value)); err != nil {
		return paramName, fmt.Errorf("export %s: %w", envVar, err)
	}
	log.Debug().Str("param", paramName).Dur("elapsed", time.Since(start)).Msg("API key loaded from SSM")
	return paramName, nil
}

// MustLoadAPIKey is LoadAPIKey for init(); it fatals on error.
func MustLoadAPIKey(client ParameterGetter, provider string) string {
	param, err := LoadAPIKey(context.Background(), client, provider)
	if err != nil {
		log.Fatal().Err(err).Str("param", param).Msg("Failed to load API key")
	}
	return param
}

// StartupLog is a convenience wrapper for the startup logger.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
}
