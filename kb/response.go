// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package kb

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/document"
	smithydocument "github.com/aws/smithy-go/document"
	"github.com/pkg/errors"

	"github.com/mattermost/bedrock-kb-client/citations"
	"github.com/mattermost/bedrock-kb-client/logger"
)

// PageNumberMetadataKey is the metadata attribute the knowledge base ingestion
// attaches to document chunks.
const PageNumberMetadataKey = "x-amz-bedrock-kb-document-page-number"

// Answer is a typed view of one retrieve and generate response.
type Answer struct {
	Text      string
	Citations []citations.Citation
	SessionID string
}

// answerFromResponse validates the nested response shape field by field so a
// malformed response fails with a descriptive error instead of a nil
// dereference somewhere downstream.
func answerFromResponse(resp *bedrockagentruntime.RetrieveAndGenerateOutput, log logger.Logger) (*Answer, error) {
	if resp == nil {
		return nil, errors.New("retrieve and generate response is empty")
	}
	if resp.Output == nil || resp.Output.Text == nil {
		return nil, errors.New("retrieve and generate response is missing output text")
	}
	if resp.SessionId == nil {
		return nil, errors.New("retrieve and generate response is missing a session ID")
	}

	answer := &Answer{
		Text:      *resp.Output.Text,
		SessionID: *resp.SessionId,
		Citations: make([]citations.Citation, 0, len(resp.Citations)),
	}

	for i, citation := range resp.Citations {
		part := citation.GeneratedResponsePart
		if part == nil || part.TextResponsePart == nil || part.TextResponsePart.Span == nil || part.TextResponsePart.Span.End == nil {
			return nil, errors.Errorf("citation %d is missing its response span", i)
		}

		converted := citations.Citation{
			SpanEnd:    int(*part.TextResponsePart.Span.End),
			References: make([]citations.Reference, 0, len(citation.RetrievedReferences)),
		}

		for j, ref := range citation.RetrievedReferences {
			if ref.Location == nil || ref.Location.S3Location == nil || ref.Location.S3Location.Uri == nil {
				return nil, errors.Errorf("reference %d of citation %d is missing its S3 location", j, i)
			}

			pageDoc, ok := ref.Metadata[PageNumberMetadataKey]
			if !ok {
				return nil, errors.Errorf("reference %d of citation %d is missing the %q metadata attribute", j, i, PageNumberMetadataKey)
			}
			page, err := pageNumber(pageDoc)
			if err != nil {
				return nil, errors.Wrapf(err, "reference %d of citation %d", j, i)
			}
			if page != math.Trunc(page) && log != nil {
				// The ingestion pipeline should emit whole page numbers.
				// Truncation toward zero matches what downstream consumers
				// have always seen, so keep it but surface the anomaly.
				log.Debug("fractional page number in reference metadata",
					"uri", *ref.Location.S3Location.Uri,
					"page", page,
				)
			}

			converted.References = append(converted.References, citations.Reference{
				Location: *ref.Location.S3Location.Uri,
				Page:     page,
			})
		}

		answer.Citations = append(answer.Citations, converted)
	}

	return answer, nil
}

// pageNumber decodes the page number metadata attribute. The attribute has
// been observed both as a JSON number and as a number-like string depending on
// the ingestion path.
func pageNumber(doc document.Interface) (float64, error) {
	if doc == nil {
		return 0, errors.New("page number metadata attribute is empty")
	}

	var raw any
	if err := doc.UnmarshalSmithyDocument(&raw); err != nil {
		return 0, errors.Wrap(err, "failed to decode page number metadata")
	}

	switch v := raw.(type) {
	case smithydocument.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, errors.Wrapf(err, "page number %q is not a valid number", string(v))
		}
		return f, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, errors.Wrapf(err, "page number %q is not a valid number", string(v))
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, errors.Errorf("page number %q is not a valid number", v)
		}
		return f, nil
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	default:
		return 0, errors.Errorf("page number metadata has unexpected type %T", raw)
	}
}
