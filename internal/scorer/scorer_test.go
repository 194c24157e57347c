package scorer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"uk.co.dudmesh.roastlive/pkg/moderation"
)

func TestScore(t *testing.T) {
	assert := assert.New(t)
	s := New(DefaultTerms)

	cases := []struct {
		text   string
		action moderation.Action
	}{
		{"gg well played", moderation.ActionAllow},
		{"", moderation.ActionAllow},
		{"you IDIOT!!", moderation.ActionFlag},
		{"Nobody likes you.", moderation.ActionHide},
		{"kill   yourself", moderation.ActionBlock},
		{"skill yourselfie", moderation.ActionAllow},
		{"gg gg gg gg gg gg", moderation.ActionHide},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			result := s.Score(tc.text)
			assert.Equal(tc.action, result.Action)
			assert.Equal(tc.action != moderation.ActionAllow, result.Flagged)
		})
	}

	result := s.Score("loser, kill yourself")
	assert.Equal(0.95, result.Score)
	assert.Equal(0.4, result.Categories.Harassment)
	assert.Equal(0.95, result.Categories.Threats)
	assert.True(moderation.ShouldBlock(result))
}

func TestParse(t *testing.T) {
	assert := assert.New(t)

	terms, err := Parse(strings.NewReader("# comment\n\nBad Word,toxicity,0.5\nspam link , spam , 0.9\n"))
	require.NoError(t, err)
	require.Len(t, terms, 2)
	assert.Equal(Term{Phrase: "bad word", Category: CategoryToxicity, Score: 0.5}, terms[0])
	assert.Equal(CategorySpam, terms[1].Category)

	for _, bad := range []string{"word,toxicity", "word,rudeness,0.5", "word,spam,2", "word,spam,x"} {
		_, err := Parse(strings.NewReader(bad))
		assert.Error(err, bad)
	}
}

func TestWatch(t *testing.T) {
	assert := assert.New(t)
	path := filepath.Join(t.TempDir(), "words.txt")
	require.NoError(t, os.WriteFile(path, []byte("meanie,toxicity,0.9\n"), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, s.Watch())
	defer s.Close()
	assert.Equal(moderation.ActionBlock, s.Score("meanie").Action)

	require.NoError(t, os.WriteFile(path, []byte("meanie,toxicity,0.1\ngrump,spam,0.6\n"), 0o644))
	assert.Eventually(func() bool { return s.Len() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(moderation.ActionAllow, s.Score("meanie").Action)
	assert.Equal(moderation.ActionHide, s.Score("grump").Action)
}
