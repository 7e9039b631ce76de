// api/schemas/scenario_test.go
package schemas_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scenarist/api/schemas"
)

func TestLocator_String(t *testing.T) {
	tests := []struct {
		loc  schemas.Locator
		want string
	}{
		{schemas.Text("Sign in"), "text=Sign in"},
		{schemas.Text("Sign in").WithExact(true), `text="Sign in"`},
		{schemas.Text(`"Save"`), `text="\"Save\""i`},
		{schemas.Text(" padded "), `text=" padded "i`},
		{schemas.Text("a >> b"), `text="a >> b"i`},
		{schemas.Text("don't"), "text=don't"},
		{schemas.XPath("//button[1]"), "xpath=//button[1]"},
		{schemas.Role("button"), "role=button"},
		{schemas.Role("button").WithName("Save"), `role=button[name="Save"]`},
		{schemas.Role("link").WithIndex(2), "role=link >> nth=2"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.loc.String())
		})
	}
}

func TestLocator_WithReturnsCopies(t *testing.T) {
	base := schemas.Role("button")
	named := base.WithName("Save").WithIndex(1)

	assert.Empty(t, base.Name)
	assert.Zero(t, base.Index)
	assert.Equal(t, "Save", named.Name)
	assert.Equal(t, 1, named.Index)
}

func TestLocator_Validate(t *testing.T) {
	require.NoError(t, schemas.Text("x").Validate())
	require.NoError(t, schemas.Role("button").WithName("Save").Validate())

	invalid := map[string]schemas.Locator{
		"unknown kind":   {Kind: "css", Value: "#id"},
		"empty value":    schemas.Text("   "),
		"negative index": schemas.Text("x").WithIndex(-1),
		"exact on xpath": schemas.XPath("//a").WithExact(true),
		"name on text":   schemas.Text("x").WithName("y"),
	}
	for name, loc := range invalid {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, loc.Validate())
		})
	}
}

func TestStep_Label(t *testing.T) {
	assert.Equal(t, "navigate(https://example.test/)", schemas.Navigate("https://example.test/").Label())
	assert.Equal(t, "scroll(0,400)", schemas.Scroll(0, 400).Label())
	assert.Equal(t, "click(text=Next)", schemas.Click(schemas.Text("Next")).Label())
	assert.Equal(t, `fill(role=searchbox, "shoes")`, schemas.Fill(schemas.Role("searchbox"), "shoes").Label())
	assert.Equal(t, "sleep(1.5s)", schemas.Sleep(1500*time.Millisecond).Label())
}

func TestStep_Validate(t *testing.T) {
	valid := []schemas.Step{
		schemas.Navigate("https://example.test/"),
		schemas.Scroll(0, 0),
		schemas.Click(schemas.Text("Next")).WithTimeout(time.Second).InFrame("checkout"),
		schemas.Fill(schemas.Role("textbox"), ""),
		schemas.Sleep(0),
	}
	for _, st := range valid {
		assert.NoError(t, st.Validate(), st.Label())
	}

	tests := []struct {
		name string
		step schemas.Step
		want string
	}{
		{"navigate without url", schemas.Navigate(" "), "url is required"},
		{"navigate bad url", schemas.Navigate("http://[::1"), "invalid url"},
		{"click bad target", schemas.Click(schemas.Text("")), "click: text locator has an empty value"},
		{"negative sleep", schemas.Sleep(-time.Second), "duration must not be negative"},
		{"negative timeout", schemas.Scroll(0, 1).WithTimeout(-1), "timeout must not be negative"},
		{"unknown kind", schemas.Step{Kind: "tap"}, `unknown step kind "tap"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.step.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestAssertion(t *testing.T) {
	v := schemas.Visible(schemas.Text("Welcome")).WithTimeout(2 * time.Second).InFrame("main")
	assert.True(t, v.ExpectVisible)
	assert.Equal(t, 2*time.Second, v.Timeout)
	assert.Equal(t, "main", v.Frame)
	assert.Equal(t, "visible(text=Welcome)", v.Label())

	h := schemas.Hidden(schemas.Text("Loading"))
	assert.False(t, h.ExpectVisible)
	assert.Equal(t, "hidden(text=Loading)", h.Label())

	assert.Error(t, schemas.Visible(schemas.Text("x")).WithTimeout(-1).Validate())
	assert.Error(t, schemas.Hidden(schemas.Locator{}).Validate())
}

func TestScenario_Validate(t *testing.T) {
	sc := schemas.Scenario{
		Name:       "checkout",
		URL:        "https://shop.test/",
		Steps:      []schemas.Step{schemas.Click(schemas.Text("Buy"))},
		Assertions: []schemas.Assertion{schemas.Visible(schemas.Text("Thanks"))},
	}
	require.NoError(t, sc.Validate())

	noName := sc
	noName.Name = ""
	assert.EqualError(t, noName.Validate(), "scenario name is required")

	badStep := sc
	badStep.Steps = []schemas.Step{schemas.Scroll(0, 1), schemas.Sleep(-1)}
	assert.ErrorContains(t, badStep.Validate(), `scenario "checkout": step 1: sleep`)

	badAssertion := sc
	badAssertion.Assertions = []schemas.Assertion{schemas.Visible(schemas.XPath(""))}
	assert.ErrorContains(t, badAssertion.Validate(), "assertion 0")

	lingering := sc
	lingering.Linger = -time.Second
	assert.ErrorContains(t, lingering.Validate(), "linger")
}
