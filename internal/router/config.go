package router

import (
	"context"
	"fmt"

	"github.com/moolen/insight/internal/capability"
	"github.com/moolen/insight/internal/config"
	"github.com/moolen/insight/internal/llm"
)

// ModelLookup resolves an entry of the models section.
type ModelLookup interface {
	Model(ctx context.Context, name string) (llm.Provider, error)
}

// CheckConfig verifies that router.capabilities and classifier.keywords only
// name known capabilities.
func CheckConfig(file *config.File) error {
	if _, err := capability.ParseTags(file.Router.Capabilities); err != nil {
		return fmt.Errorf("router.capabilities: %w", err)
	}
	for name := range file.Classifier.Keywords {
		if _, err := capability.ParseTag(name); err != nil {
			return fmt.Errorf("classifier.keywords: %w", err)
		}
	}
	return nil
}

// OptionsFromConfig builds router options from the config file. Bindings and
// Metrics are left for the caller.
func OptionsFromConfig(ctx context.Context, file *config.File, models ModelLookup) (Options, error) {
	if err := CheckConfig(file); err != nil {
		return Options{}, err
	}
	enabled, _ := capability.ParseTags(file.Router.Capabilities)

	keywords := make(map[capability.Tag][]string, len(file.Classifier.Keywords))
	for name, words := range file.Classifier.Keywords {
		tag, _ := capability.ParseTag(name)
		keywords[tag] = append(keywords[tag], words...)
	}

	clsOpts := ClassifierOptions{Keywords: keywords, CacheSize: file.Classifier.CacheSize}
	if name := file.Classifier.Model; name != "" {
		provider, err := models.Model(ctx, name)
		if err != nil {
			return Options{}, fmt.Errorf("classifier model: %w", err)
		}
		clsOpts.Model = provider
	}
	classifier, err := NewClassifier(clsOpts)
	if err != nil {
		return Options{}, err
	}

	var commentator Commentator = NoCommentary{}
	if file.Router.Commentary == "model" {
		provider, err := models.Model(ctx, file.Router.CommentaryModel)
		if err != nil {
			return Options{}, fmt.Errorf("commentary model: %w", err)
		}
		if commentator, err = NewModelCommentator(provider, 0); err != nil {
			return Options{}, err
		}
	}

	return Options{
		Classifier:        classifier,
		Enabled:           enabled,
		RequestTimeout:    file.Router.RequestTimeout,
		QueryTimeout:      file.Router.QueryTimeout,
		MaxConcurrency:    file.Router.MaxConcurrency,
		DefaultWindowDays: file.Router.DefaultWindowDays,
		Commentator:       commentator,
	}, nil
}
