// Package credentials resolves a host's AuthProfile into SSH authentication
// material: a private key file, an ssh-agent socket, or a secret fetched
// from AWS Secrets Manager (SPEC_FULL §4.12), always returned in a
// scrub-on-release buffer.
package credentials

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/kestrelops/kestrel/internal/domain"
	"github.com/kestrelops/kestrel/internal/kestrelerr"
	"github.com/kestrelops/kestrel/internal/secret"
)

// Material is the resolved authentication method ready to hand to
// ssh.ClientConfig.Auth.
type Material struct {
	AuthMethods []ssh.AuthMethod
	// KeyMaterial holds the raw private key bytes when Kind is "file" or
	// "aws_secretsmanager", so the caller can scrub it once the ssh.Signer
	// has been derived.
	KeyMaterial *secret.Bytes
}

// Resolver resolves AuthProfiles into connection-ready Material.
type Resolver struct {
	smClientFactory func(region string) (secretsManagerAPI, error)
}

type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// NewResolver returns a Resolver using the default AWS SDK v2 config chain
// for any aws_secretsmanager-backed auth profile.
func NewResolver() *Resolver {
	return &Resolver{
		smClientFactory: func(region string) (secretsManagerAPI, error) {
			ctx := context.Background()
			opts := []func(*awsconfig.LoadOptions) error{}
			if region != "" {
				opts = append(opts, awsconfig.WithRegion(region))
			}
			cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
			if err != nil {
				return nil, err
			}
			return secretsmanager.NewFromConfig(cfg), nil
		},
	}
}

// Resolve produces authentication material for profile.
func (r *Resolver) Resolve(ctx context.Context, profile domain.AuthProfile) (*Material, error) {
	switch profile.Kind {
	case "", "file":
		return r.resolveFile(profile)
	case "agent":
		return r.resolveAgent()
	case "aws_secretsmanager":
		return r.resolveSecretsManager(ctx, profile)
	default:
		return nil, kestrelerr.Newf(kestrelerr.ClassConfig, "unknown auth profile kind %q", profile.Kind)
	}
}

func (r *Resolver) resolveFile(profile domain.AuthProfile) (*Material, error) {
	raw, err := os.ReadFile(profile.KeyPath)
	if err != nil {
		return nil, kestrelerr.New(kestrelerr.ClassConfig, fmt.Errorf("reading private key %s: %w", profile.KeyPath, err))
	}
	keyBytes := secret.New(raw)
	var signer ssh.Signer
	if profile.Passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes.Reveal(), []byte(profile.Passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(keyBytes.Reveal())
	}
	if err != nil {
		keyBytes.Release()
		return nil, kestrelerr.New(kestrelerr.ClassConnection, fmt.Errorf("parsing private key %s: %w", profile.KeyPath, err))
	}
	return &Material{
		AuthMethods: []ssh.AuthMethod{ssh.PublicKeys(signer)},
		KeyMaterial: keyBytes,
	}, nil
}

func (r *Resolver) resolveAgent() (*Material, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, kestrelerr.New(kestrelerr.ClassConfig, fmt.Errorf("SSH_AUTH_SOCK not set for agent auth"))
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, kestrelerr.New(kestrelerr.ClassConnection, fmt.Errorf("dialing ssh-agent: %w", err))
	}
	ag := agent.NewClient(conn)
	return &Material{AuthMethods: []ssh.AuthMethod{ssh.PublicKeysCallback(ag.Signers)}}, nil
}

func (r *Resolver) resolveSecretsManager(ctx context.Context, profile domain.AuthProfile) (*Material, error) {
	client, err := r.smClientFactory(profile.AWSRegion)
	if err != nil {
		return nil, kestrelerr.New(kestrelerr.ClassConfig, fmt.Errorf("building secretsmanager client: %w", err))
	}
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(profile.SecretID),
	})
	if err != nil {
		return nil, kestrelerr.New(kestrelerr.ClassConnection, fmt.Errorf("fetching secret %s: %w", profile.SecretID, err))
	}
	var raw []byte
	if out.SecretString != nil {
		raw = []byte(*out.SecretString)
	} else {
		raw = out.SecretBinary
	}
	keyBytes := secret.New(raw)
	signer, err := ssh.ParsePrivateKey(keyBytes.Reveal())
	if err != nil {
		keyBytes.Release()
		return nil, kestrelerr.New(kestrelerr.ClassConnection, fmt.Errorf("parsing secret %s as private key: %w", profile.SecretID, err))
	}
	return &Material{
		AuthMethods: []ssh.AuthMethod{ssh.PublicKeys(signer)},
		KeyMaterial: keyBytes,
	}, nil
}
