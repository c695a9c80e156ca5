package region

import (
	"math/rand"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRoster = `FIPS roster, 2023 vintage
01000 Alabama
01001 Autauga County, AL
01003 Baldwin County, AL
  06000 California
06001 Alameda County, CA
06003	Alpine County, CA
48201 Harris County, TX
not a code
1234 short code
`

func TestParse_ClassifiesHeadersAndCounties(t *testing.T) {
	c := Parse(sampleRoster)

	assert.Equal(t, []Code{"01", "06"}, c.HeaderStates())
	assert.Equal(t, []Code{"01001", "01003", "06001", "06003", "48201"}, c.Counties())
	assert.Equal(t, []Code{"01", "06", "48"}, c.CountyPrefixes())
	assert.Equal(t, []Code{"01", "06", "48"}, c.States())

	assert.True(t, c.HasState("48"), "county-only state must still be derivable")
	assert.False(t, c.HasCounty("01000"), "state header is not a county")
	assert.Equal(t, "Alabama", c.Name("01"))
	assert.Equal(t, "Alpine County, CA", c.Name("06003"))
}

func TestParse_EmptyAndGarbage(t *testing.T) {
	for _, in := range []string{"", "\n\n", "hello\nworld", "abcde 12345"} {
		c := Parse(in)
		assert.True(t, c.Empty(), "input %q", in)
		assert.Empty(t, c.RequestCodes())
	}
}

func TestParse_LongerDigitRunStillMatchesLeadingFive(t *testing.T) {
	c := Parse("123456 trailing digits are free text\n")
	require.Equal(t, []Code{"12345"}, c.Counties())
	assert.Equal(t, "6 trailing digits are free text", c.Name("12345"))
}

func TestRequestCodes_StatesThenCounties(t *testing.T) {
	c := Parse(sampleRoster)
	got := c.RequestCodes()
	want := []Code{"01", "06", "48", "01001", "01003", "06001", "06003", "48201"}
	assert.Equal(t, want, got)
}

func TestNilCatalog_IsSafe(t *testing.T) {
	var c *Catalog
	assert.True(t, c.Empty())
	assert.Nil(t, c.States())
	assert.False(t, c.HasState("06"))
	assert.Equal(t, "", c.Name("06"))
}

// every county's prefix must be a state the catalog reports
func TestParse_CountyPrefixesAreDerivable(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 50; iter++ {
		var b strings.Builder
		for i := 0; i < 40; i++ {
			n := rng.Intn(100000)
			if rng.Intn(5) == 0 {
				n = (n / 1000) * 1000
			}
			code := leftPad(strconv.Itoa(n), 5)
			if rng.Intn(7) == 0 {
				b.WriteString("x")
			}
			b.WriteString(code + " region\n")
		}
		c := Parse(b.String())
		prefixes := map[Code]bool{}
		for _, p := range c.CountyPrefixes() {
			prefixes[p] = true
		}
		for _, county := range c.Counties() {
			require.True(t, prefixes[county.StateOf()], "county %s prefix missing", county)
			require.True(t, c.HasState(county.StateOf()))
		}
	}
}
