// internal/locator/locator_test.go
package locator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scenarist/api/schemas"
	"github.com/xkilldash9x/scenarist/internal/browser"
	"github.com/xkilldash9x/scenarist/internal/browser/fake"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want schemas.Locator
	}{
		{"text=No Results", schemas.Text("No Results")},
		{`text="No Results"`, schemas.Text("No Results").WithExact(true)},
		{`text='Sign in'`, schemas.Text("Sign in").WithExact(true)},
		{"  text=products  ", schemas.Text("products")},
		{"xpath=html/body/div[2]/div/div[2]", schemas.XPath("html/body/div[2]/div/div[2]")},
		{"//button[@type='submit']", schemas.XPath("//button[@type='submit']")},
		{"/html/body", schemas.XPath("/html/body")},
		{"(//li)[3]", schemas.XPath("(//li)[3]")},
		{"role=button", schemas.Role("button")},
		{`role=button[name="Save draft"]`, schemas.Role("button").WithName("Save draft")},
		{"role=link[name='Home']", schemas.Role("link").WithName("Home")},
		{"text=Shoes >> nth=2", schemas.Text("Shoes").WithIndex(2)},
		{"//li >> nth=0", schemas.XPath("//li")},
		{"text=a >> b", schemas.Text("a >> b")},
		{`text="Save"i`, schemas.Text("Save")},
		{`text=" padded "i >> nth=1`, schemas.Text(" padded ").WithIndex(1)},
		{`text="a >> nth=2"`, schemas.Text("a >> nth=2").WithExact(true)},
		{"text=it's here >> nth=1", schemas.Text("it's here").WithIndex(1)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]string{
		"":                          "empty locator",
		"   ":                       "empty locator",
		"css=.btn":                  "unsupported locator",
		"text=":                     "empty value",
		"text=Shoes >> nth=x":       "invalid nth selector",
		"text=Shoes >> nth=-1":      "must not be negative",
		`role=button[name="Save"`:   "unterminated role attribute",
		`role=button[label="Save"]`: "only name is supported",
		`text="unterminated\"`:      "parsing locator",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			require.Error(t, err)
			assert.Contains(t, err.Error(), want)
		})
	}
}

func TestParse_RoundTrip(t *testing.T) {
	locs := []schemas.Locator{
		schemas.Text("No Results"),
		schemas.Text("Exact  Case").WithExact(true),
		schemas.Text(`say "hi"`).WithExact(true),
		schemas.XPath("html/body/div[2]/div/div[2]/div[2]/div[2]/div[1]/button"),
		schemas.XPath("//a[@href]").WithIndex(4),
		schemas.Role("checkbox"),
		schemas.Role("button").WithName(`Save "all"`).WithIndex(1),
		schemas.Text(`"Save"`),
		schemas.Text("'quoted'").WithIndex(2),
		schemas.Text(" padded "),
		schemas.Text("a >> nth=2"),
		schemas.Text("next >> page").WithIndex(3),
		schemas.Text("x >> nth=1").WithExact(true).WithIndex(1),
		schemas.Role("link").WithName("more >> nth=5"),
		schemas.Text("don't stop"),
	}
	for _, l := range locs {
		t.Run(l.String(), func(t *testing.T) {
			got, err := Parse(l.String())
			require.NoError(t, err)
			assert.Equal(t, l, got)
		})
	}
}

func TestMustParse_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParse("css=div") })
	assert.NotPanics(t, func() { MustParse("text=ok") })
}

func TestCompile(t *testing.T) {
	q, err := Compile(schemas.Role("button").WithName("Save").WithIndex(1))
	require.NoError(t, err)

	expr := q.Expression()
	assert.True(t, strings.HasPrefix(expr, "(function(kind, value, opts)"))
	assert.True(t, strings.HasSuffix(expr, `)("role","button",{"exact":false,"name":"Save"})`), expr)
	assert.Equal(t, expr+".slice(0, 65)", q.SliceExpression(65))
}

func TestCompile_EscapesValues(t *testing.T) {
	q, err := Compile(schemas.Text(`it's "quoted" </script>`).WithExact(true))
	require.NoError(t, err)
	assert.Contains(t, q.Expression(), `"text",`)
	assert.Contains(t, q.Expression(), `{"exact":true}`)
	assert.NotContains(t, q.Expression(), `"quoted" `)
}

func TestCompile_Invalid(t *testing.T) {
	_, err := Compile(schemas.Locator{Kind: "css", Value: "div"})
	assert.Error(t, err)
	_, err = Compile(schemas.XPath("//div").WithExact(true))
	assert.Error(t, err)
}

const site = "https://shop.test/"

func openFrame(t *testing.T, elems ...*fake.Element) (*fake.Page, *fake.Frame) {
	t.Helper()
	ctx := context.Background()
	a := fake.New().Route(site, fake.Route{Build: func(p *fake.Page) { p.Main().Add(elems...) }})
	d, err := a.StartDriver(ctx)
	require.NoError(t, err)
	b, err := d.Launch(ctx, browser.LaunchOptions{})
	require.NoError(t, err)
	bc, err := b.NewContext(ctx)
	require.NoError(t, err)
	p, err := bc.NewPage(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Goto(ctx, site, browser.WaitCommit))
	page := p.(*fake.Page)
	return page, page.Main()
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	first := &fake.Element{Text: "Shoes", Role: "link"}
	second := &fake.Element{Text: "Running shoes", Role: "link"}
	_, frame := openFrame(t, first, second, &fake.Element{Text: "Hats"})

	elems, err := Resolve(ctx, frame, schemas.Text("shoes"))
	require.NoError(t, err)
	assert.Len(t, elems, 2)

	elems, err = Resolve(ctx, frame, schemas.Text("Socks"))
	require.NoError(t, err)
	assert.Empty(t, elems, "zero matches is not an error")

	el, err := First(ctx, frame, schemas.Text("shoes").WithIndex(1))
	require.NoError(t, err)
	assert.Same(t, second, el)

	_, err = First(ctx, frame, schemas.Text("shoes").WithIndex(2))
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	var resErr *schemas.ElementResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Contains(t, resErr.Reason, "2 matches, index 2 requested")
}

func TestResolve_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("nil frame", func(t *testing.T) {
		_, err := Resolve(ctx, nil, schemas.Text("x"))
		assert.ErrorIs(t, err, browser.ErrFrameDetached)
		assert.False(t, IsNotFound(err))
	})

	t.Run("invalid locator", func(t *testing.T) {
		_, frame := openFrame(t)
		_, err := Resolve(ctx, frame, schemas.Locator{Kind: schemas.LocatorText})
		var resErr *schemas.ElementResolutionError
		require.ErrorAs(t, err, &resErr)
		assert.Equal(t, "invalid locator", resErr.Reason)
	})

	t.Run("detached frame", func(t *testing.T) {
		page, _ := openFrame(t)
		child := page.Main().AddFrame("chat", "https://chat.test/")
		child.Detach()

		_, err := Resolve(ctx, child, schemas.Text("x"))
		var resErr *schemas.ElementResolutionError
		require.ErrorAs(t, err, &resErr)
		assert.Equal(t, "frame detached", resErr.Reason)
		assert.Equal(t, schemas.ErrCodeElementResolution, schemas.CodeOf(err))
	})

	t.Run("closed page", func(t *testing.T) {
		page, frame := openFrame(t)
		require.NoError(t, page.Close(ctx))

		_, err := Resolve(ctx, frame, schemas.Text("x"))
		var resErr *schemas.ElementResolutionError
		require.ErrorAs(t, err, &resErr)
		assert.Equal(t, "page closed", resErr.Reason)
	})

	t.Run("driver error", func(t *testing.T) {
		_, frame := openFrame(t)
		boom := errors.New("Execution context was destroyed")
		frame.FailResolve(boom)

		_, err := Resolve(ctx, frame, schemas.XPath("//div"))
		assert.ErrorIs(t, err, boom)
		assert.False(t, IsNotFound(err))
	})

	t.Run("canceled context is returned unchanged", func(t *testing.T) {
		_, frame := openFrame(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := Resolve(cctx, frame, schemas.Text("x"))
		assert.Equal(t, context.Canceled, err)
	})
}
