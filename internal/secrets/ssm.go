// Package secrets resolves credentials the portal keeps out of its config,
// currently the admin API token stored as an SSM SecureString.
package secrets

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/plushcare/portal/internal/xerrors"
)

// ParameterAPI is the slice of the SSM client used here
type ParameterAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMStore reads decrypted parameter values
type SSMStore struct {
	client ParameterAPI
}

func NewSSMStore(client ParameterAPI) *SSMStore {
	return &SSMStore{client: client}
}

// NewSSMStoreFromEnv builds a client from the default AWS credential chain
func NewSSMStoreFromEnv(ctx context.Context) (*SSMStore, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, xerrors.Wrap(err, "load AWS config")
	}
	return NewSSMStore(ssm.NewFromConfig(awsCfg)), nil
}

// Get returns the trimmed, decrypted value of name. Missing or blank values are errors.
func (s *SSMStore) Get(ctx context.Context, name string) (string, error) {
	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", name)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", name)
	}
	v := strings.TrimSpace(*out.Parameter.Value)
	if v == "" {
		return "", xerrors.Newf("SSM parameter %s is empty", name)
	}
	return v, nil
}

// Getter is satisfied by SSMStore
type Getter interface {
	Get(ctx context.Context, name string) (string, error)
}

// AdminToken returns token when set, else fetches param from store.
// Both empty yields "" with no error, which leaves the admin API closed.
func AdminToken(ctx context.Context, token, param string, store Getter) (string, error) {
	if token != "" {
		return token, nil
	}
	if param == "" {
		return "", nil
	}
	if store == nil {
		return "", xerrors.Newf("admin token parameter %s set but no parameter store configured", param)
	}
	return store.Get(ctx, param)
}
