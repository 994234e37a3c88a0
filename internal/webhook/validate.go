package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"sigs.k8s.io/controller-runtime/pkg/webhook/admission"

	"github.com/ppiankov/tagwatch/internal/config"
	"github.com/ppiankov/tagwatch/internal/registry"
)

const annotationPrefix = "tagwatch.dev/"

// AnnotationValidator rejects workloads with unknown tagwatch.dev/*
// annotations or invalid annotation values.
type AnnotationValidator struct{}

// Handle validates tagwatch.dev/* annotations on any admitted object.
func (v *AnnotationValidator) Handle(_ context.Context, req admission.Request) admission.Response {
	var meta struct {
		Metadata struct {
			Annotations map[string]string `json:"annotations"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(req.Object.Raw, &meta); err != nil {
		return admission.Allowed("") // fail open on decode error
	}

	for key, value := range meta.Metadata.Annotations {
		if !strings.HasPrefix(key, annotationPrefix) {
			continue
		}
		switch key {
		case config.AnnotationIgnore:
			if _, err := strconv.ParseBool(value); err != nil {
				return admission.Denied(fmt.Sprintf(
					"annotation %q must be a boolean, got %q", key, value))
			}
		case config.AnnotationTagRegex:
			if _, err := registry.CompilePattern(value); err != nil {
				return admission.Denied(fmt.Sprintf("annotation %q: %v", key, err))
			}
		default:
			return admission.Denied(fmt.Sprintf(
				"unknown tagwatch.dev annotation %q; valid annotations: %s, %s",
				key, config.AnnotationIgnore, config.AnnotationTagRegex))
		}
	}
	return admission.Allowed("")
}
