package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/service"
)

func TestPersonalize(t *testing.T) {
	tests := []struct {
		name    string
		content string
		contact model.Contact
		want    string
	}{
		{
			name:    "all fields present",
			content: "Hi {{first_name}} {{last_name}} from {{company}} <{{email}}>",
			contact: model.Contact{FirstName: "Alice", LastName: "Smith", Company: "Acme", Email: "a@x.io"},
			want:    "Hi Alice Smith from Acme <a@x.io>",
		},
		{
			name:    "defaults for empty fields",
			content: "Hi {{first_name}}, {{full_name}} at {{company}}",
			contact: model.Contact{Email: "a@x.io"},
			want:    "Hi there, there at your company",
		},
		{
			name:    "full name with only a last name",
			content: "{{full_name}}",
			contact: model.Contact{LastName: "Smith"},
			want:    "Smith",
		},
		{
			name:    "custom fields override built-ins",
			content: "{{company}} / {{plan}} / {{seats}}",
			contact: model.Contact{Company: "Acme", CustomFields: model.JSONMap{"company": "Override", "plan": "gold", "seats": 3}},
			want:    "Override / gold / 3",
		},
		{
			name:    "unknown tokens are left as is",
			content: "Hello {{nickname}}",
			contact: model.Contact{FirstName: "Alice"},
			want:    "Hello {{nickname}}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, service.Personalize(tt.content, &tt.contact))
		})
	}
}

func TestPersonalizeIsIdempotentWithoutTokens(t *testing.T) {
	c := &model.Contact{FirstName: "Alice"}
	once := service.Personalize("Hi {{first_name}}", c)
	assert.Equal(t, once, service.Personalize(once, c))
}

func TestRenderTemplateSinglePass(t *testing.T) {
	// a value that looks like a token is not expanded again
	out := service.RenderTemplate("{{a}} {{b}}", map[string]string{"a": "{{b}}", "b": "x"})
	assert.Equal(t, "{{b}} x", out)
}

func newTemplateService(f *fixture) *service.TemplateService {
	return &service.TemplateService{TemplateRepo: f.templates, Log: zap.NewNop()}
}

func TestTemplateServiceDefaultsAreReadOnly(t *testing.T) {
	f := newFixture()
	svc := newTemplateService(f)
	ctx := context.Background()
	def := f.templates.add(&model.Template{Name: "Welcome", Subject: "Hi", Content: "<p>Hi</p>", IsDefault: true})

	name := "Mine now"
	_, err := svc.Update(ctx, 1, def.ID, service.TemplateUpdate{Name: &name})
	require.Error(t, err)
	assert.Equal(t, 403, appErrors.StatusCode(err))

	err = svc.Delete(ctx, 1, def.ID)
	require.Error(t, err)
	assert.Equal(t, 403, appErrors.StatusCode(err))

	// duplicating a default gives the caller an editable copy
	cp, err := svc.Duplicate(ctx, 1, def.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "Welcome (Copy)", cp.Name)
	assert.False(t, cp.IsDefault)
	require.NotNil(t, cp.UserID)
	assert.Equal(t, 1, *cp.UserID)
}

func TestTemplateServiceCreateValidates(t *testing.T) {
	svc := newTemplateService(newFixture())
	_, err := svc.Create(context.Background(), 1, service.TemplateInput{Name: "No subject", Content: "x"})
	require.Error(t, err)
	assert.Equal(t, 400, appErrors.StatusCode(err))
}
