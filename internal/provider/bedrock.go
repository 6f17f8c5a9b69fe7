package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// BedrockRuntime mirrors the subset of the AWS Bedrock runtime client used by
// the adapter. It is satisfied by *bedrockruntime.Client.
type BedrockRuntime interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Bedrock implements Provider on top of the AWS Bedrock Converse API.
type Bedrock struct {
	runtime BedrockRuntime
}

// NewBedrock creates a Bedrock provider for region using static credentials.
// endpoint overrides the service endpoint when non-empty.
func NewBedrock(region, accessKeyID, secretAccessKey, endpoint string) (*Bedrock, error) {
	if region == "" {
		return nil, errors.New("bedrock region is required")
	}
	if accessKeyID == "" || secretAccessKey == "" {
		return nil, errors.New("bedrock access key id and secret are required")
	}
	creds := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     accessKeyID,
			SecretAccessKey: secretAccessKey,
			Source:          "ai-council",
		}, nil
	})
	opts := bedrockruntime.Options{
		Region:           region,
		Credentials:      aws.NewCredentialsCache(creds),
		RetryMaxAttempts: 1,
	}
	if endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
	}
	return &Bedrock{runtime: bedrockruntime.New(opts)}, nil
}

// NewBedrockFromClient wraps an existing runtime client, mainly for tests.
func NewBedrockFromClient(runtime BedrockRuntime) (*Bedrock, error) {
	if runtime == nil {
		return nil, errors.New("bedrock runtime client is required")
	}
	return &Bedrock{runtime: runtime}, nil
}

// Query sends a prompt to a Bedrock model and returns the response.
func (b *Bedrock) Query(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(req.Model),
		Messages: []brtypes.Message{
			{
				Role: brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: req.Prompt},
				},
			},
		},
	}
	var inference brtypes.InferenceConfiguration
	if req.MaxTokens > 0 {
		inference.MaxTokens = aws.Int32(int32(req.MaxTokens)) //nolint:gosec // bounded by config validation
	}
	if req.Temperature != nil {
		inference.Temperature = aws.Float32(float32(*req.Temperature))
	}
	input.InferenceConfig = &inference

	out, err := b.runtime.Converse(ctx, input)
	if err != nil {
		return Response{}, bedrockError(err)
	}

	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return Response{}, fmt.Errorf("bedrock: unexpected output type %T: %w", out.Output, ErrEmptyResponse)
	}
	var content strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*brtypes.ContentBlockMemberText); ok {
			content.WriteString(text.Value)
		}
	}
	if strings.TrimSpace(content.String()) == "" {
		return Response{}, fmt.Errorf("bedrock: %w", ErrEmptyResponse)
	}

	return Response{
		Model:    req.Model,
		Content:  content.String(),
		Provider: FamilyBedrock,
		Latency:  time.Since(start),
	}, nil
}

// bedrockError maps AWS API errors onto APIError; transport errors pass
// through for classification.
func bedrockError(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("bedrock converse: %w", err)
	}
	status := 0
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		status = respErr.HTTPStatusCode()
	}
	apiError := NewAPIError(FamilyBedrock, status, apiErr.ErrorCode()+": "+apiErr.ErrorMessage())
	switch apiErr.ErrorCode() {
	case "ThrottlingException", "TooManyRequestsException":
		apiError.Reason = "rate_limit"
	case "AccessDeniedException", "UnrecognizedClientException":
		apiError.Reason = "auth_error"
	case "ServiceUnavailableException", "ModelNotReadyException":
		apiError.Reason = "provider_overloaded"
	}
	return apiError
}
