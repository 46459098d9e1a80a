package timers

import (
	"fmt"
	"strings"

	"github.com/dukex/applyflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

func idProperty() map[string]any {
	return map[string]any{"type": "string", "minLength": 1}
}

// metadataSchemas describes the metadata each timer type must carry.
var metadataSchemas = map[models.TimerType]map[string]any{
	models.TimerTypeAutoApplyDelay: {
		"type": "object",
		"properties": map[string]any{
			models.TimerMetaApplicationID: idProperty(),
			models.TimerMetaWorkflowRunID: idProperty(),
			models.TimerMetaJobID:         idProperty(),
		},
		"required": []any{models.TimerMetaApplicationID},
	},
	models.TimerTypeCVVerification: {
		"type": "object",
		"properties": map[string]any{
			models.TimerMetaApplicationID: idProperty(),
			models.TimerMetaWorkflowRunID: idProperty(),
		},
		"required": []any{models.TimerMetaApplicationID},
	},
	models.TimerTypeMessageVerification: {
		"type": "object",
		"properties": map[string]any{
			models.TimerMetaApplicationID: idProperty(),
			models.TimerMetaWorkflowRunID: idProperty(),
		},
		"required": []any{models.TimerMetaApplicationID},
	},
	models.TimerTypeDocDeletion: {
		"type": "object",
		"properties": map[string]any{
			models.TimerMetaResumeID:      idProperty(),
			models.TimerMetaCoverLetterID: idProperty(),
			models.TimerMetaApplicationID: idProperty(),
		},
		"anyOf": []any{
			map[string]any{"required": []any{models.TimerMetaResumeID}},
			map[string]any{"required": []any{models.TimerMetaCoverLetterID}},
		},
	},
	models.TimerTypeFollowUpReminder: {
		"type": "object",
		"properties": map[string]any{
			models.TimerMetaApplicationID:  idProperty(),
			models.TimerMetaFollowUpNumber: map[string]any{"type": "integer", "minimum": 1},
		},
		"required": []any{models.TimerMetaApplicationID},
	},
}

func validateMetadata(timerType models.TimerType, metadata map[string]any) error {
	schema, ok := metadataSchemas[timerType]
	if !ok {
		return fmt.Errorf("%w: unknown timer type %q", ErrInvalidTimer, timerType)
	}

	if metadata == nil {
		metadata = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(metadata))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTimer, err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			messages = append(messages, e.String())
		}

		return fmt.Errorf("%w: %s metadata: %s", ErrInvalidTimer, timerType, strings.Join(messages, "; "))
	}

	return nil
}
