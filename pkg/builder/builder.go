// Package builder produces the category-routing conversation workflow from a fixed template
// and the business's channel names.
package builder

import (
	"errors"
	"slices"
	"strings"

	"github.com/dukex/parley/pkg/models"
)

const (
	StepAskLanguage = "ask_language"
	StepWelcome     = "welcome"
	StepAskCategory = "ask_category"

	CategoryGeneral   = "general"
	CategoryProduct   = "product"
	CategoryQuotation = "quotation"

	channelStepPrefix = "tag_channel_"
)

// ErrWorkflowNameRequired is returned when the workflow name is empty.
var ErrWorkflowNameRequired = errors.New("workflow name is required")

// Languages are the languages offered by the ask_language step.
var Languages = []string{"en", "es", "pt"}

var languageLabels = map[string]string{
	"en": "English",
	"es": "Español",
	"pt": "Português",
}

var fixedCategories = []string{CategoryGeneral, CategoryProduct, CategoryQuotation}

var categoryLabels = map[string]map[string]string{
	"en": {CategoryGeneral: "General", CategoryProduct: "Product", CategoryQuotation: "Quotation"},
	"es": {CategoryGeneral: "General", CategoryProduct: "Producto", CategoryQuotation: "Cotización"},
	"pt": {CategoryGeneral: "Geral", CategoryProduct: "Produto", CategoryQuotation: "Cotação"},
}

var defaultMessages = map[string]Messages{
	"en": {
		AskLanguage: "Please choose your language.",
		Welcome:     "Welcome! We are happy to help you.",
		AskCategory: "What can we help you with?",
	},
	"es": {
		AskLanguage: "Por favor, elige tu idioma.",
		Welcome:     "¡Bienvenido! Estamos felices de ayudarte.",
		AskCategory: "¿En qué podemos ayudarte?",
	},
	"pt": {
		AskLanguage: "Por favor, escolha seu idioma.",
		Welcome:     "Bem-vindo! Estamos felizes em ajudar.",
		AskCategory: "Como podemos ajudar?",
	},
}

// Messages are the authored texts of the three prompting steps in one language.
type Messages struct {
	AskLanguage string `json:"askLanguage" yaml:"askLanguage"`
	Welcome     string `json:"welcome"     yaml:"welcome"`
	AskCategory string `json:"askCategory" yaml:"askCategory"`
}

// Input collects everything the builder needs.
type Input struct {
	Name            string
	BusinessID      string
	AgentID         *string
	Trigger         models.Trigger
	Active          bool
	DefaultLanguage string
	Messages        map[string]Messages
	Channels        []string
}

// Build returns the workflow for input. The result is a pure function of input: building
// twice with the same input yields structurally identical steps and translations. Channel
// names are not de-duplicated; a repeated name surfaces as a duplicate step error.
func Build(input Input) (*models.ConversationWorkflow, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, ErrWorkflowNameRequired
	}

	trigger := input.Trigger
	if trigger == "" {
		trigger = models.TriggerConversationOpened
	}

	defaultLanguage := input.DefaultLanguage
	if defaultLanguage == "" {
		defaultLanguage = Languages[0]
	}

	channels := extraChannels(input.Channels)

	workflow := &models.ConversationWorkflow{
		Name:            input.Name,
		BusinessID:      input.BusinessID,
		AgentID:         input.AgentID,
		Trigger:         trigger,
		Active:          input.Active,
		DefaultLanguage: defaultLanguage,
		Steps:           buildSteps(channels),
		Translations:    make(map[string]models.LanguageContent),
	}

	for _, language := range languagesOf(input.Messages, defaultLanguage) {
		workflow.Translations[language] = buildContent(language, input.Messages[language], channels)
	}

	if err := models.ValidateWorkflow(workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

// ChannelStepID returns the id of the update_tag step generated for a channel name.
func ChannelStepID(channel string) string {
	return channelStepPrefix + channel
}

func extraChannels(names []string) []string {
	channels := make([]string, 0, len(names))

	for _, name := range names {
		if slices.Contains(fixedCategories, name) {
			continue
		}

		channels = append(channels, name)
	}

	return channels
}

func buildSteps(channels []string) []*models.WorkflowStep {
	languageBranches := make([]models.Branch, 0, len(Languages))
	for _, language := range Languages {
		languageBranches = append(languageBranches, models.Branch{Value: language, NextStepID: StepWelcome})
	}

	categoryBranches := []models.Branch{
		{Value: CategoryGeneral, NextStepID: models.StepEnd},
		{Value: CategoryProduct, NextStepID: "tag_product"},
		{Value: CategoryQuotation, NextStepID: "tag_quotation"},
	}
	for _, channel := range channels {
		categoryBranches = append(categoryBranches, models.Branch{Value: channel, NextStepID: ChannelStepID(channel)})
	}

	steps := []*models.WorkflowStep{
		{
			ID:                StepAskLanguage,
			Type:              models.StepTypeAskQuestion,
			Branches:          languageBranches,
			DefaultNextStepID: StepWelcome,
		},
		{
			ID:         StepWelcome,
			Type:       models.StepTypeSendMessage,
			NextStepID: StepAskCategory,
		},
		{
			ID:       StepAskCategory,
			Type:     models.StepTypeAskQuestion,
			Branches: categoryBranches,
		},
		tagStep("tag_product", CategoryProduct),
		tagStep("tag_quotation", CategoryQuotation),
	}

	for _, channel := range channels {
		steps = append(steps, tagStep(ChannelStepID(channel), channel))
	}

	return steps
}

func tagStep(id, tag string) *models.WorkflowStep {
	return &models.WorkflowStep{
		ID:         id,
		Type:       models.StepTypeUpdateTag,
		NextStepID: models.StepEnd,
		Config:     map[string]any{"tags": []any{tag}},
	}
}

// languagesOf returns the authored languages in a stable order, followed by the default
// language when it was not authored.
func languagesOf(messages map[string]Messages, defaultLanguage string) []string {
	languages := make([]string, 0, len(messages)+1)

	for language := range messages {
		languages = append(languages, language)
	}

	slices.Sort(languages)

	if slices.Contains(languages, defaultLanguage) {
		return languages
	}

	return append(languages, defaultLanguage)
}

func buildContent(language string, authored Messages, channels []string) models.LanguageContent {
	fallback, ok := defaultMessages[language]
	if !ok {
		fallback = defaultMessages["en"]
	}

	labels, ok := categoryLabels[language]
	if !ok {
		labels = categoryLabels["en"]
	}

	languageOptions := make([]models.Option, 0, len(Languages))
	for _, code := range Languages {
		languageOptions = append(languageOptions, models.Option{Value: code, Label: languageLabels[code]})
	}

	categoryOptions := make([]models.Option, 0, len(fixedCategories)+len(channels))
	for _, category := range fixedCategories {
		categoryOptions = append(categoryOptions, models.Option{Value: category, Label: labels[category]})
	}

	for _, channel := range channels {
		categoryOptions = append(categoryOptions, models.Option{Value: channel, Label: channel})
	}

	content := models.LanguageContent{
		StepAskLanguage: {Message: orDefault(authored.AskLanguage, fallback.AskLanguage), Options: languageOptions},
		StepWelcome:     {Message: orDefault(authored.Welcome, fallback.Welcome)},
		StepAskCategory: {Message: orDefault(authored.AskCategory, fallback.AskCategory), Options: categoryOptions},
		"tag_product":   {},
		"tag_quotation": {},
	}

	for _, channel := range channels {
		content[ChannelStepID(channel)] = models.StepContent{}
	}

	return content
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}
