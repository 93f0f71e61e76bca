package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageTextJoinsTextParts(t *testing.T) {
	msg := Message{Role: RoleUser, Parts: []ContentPart{
		NewTextPart("look at"),
		NewImagePart([]byte{0x1}, "image/png"),
		NewTextPart("this picture"),
	}}
	assert.Equal(t, "look at this picture", msg.Text())

	plain := NewTextMessage(RoleSystem, "hello")
	assert.Equal(t, "hello", plain.Text())
}

func TestWithTextKeepsNonTextPartsInOrder(t *testing.T) {
	image := NewImagePart([]byte{0x1}, "image/png")
	video := NewVideoPart("https://example.com/v.mp4", "video/mp4")
	msg := Message{Role: RoleUser, Parts: []ContentPart{
		NewTextPart("old"),
		image,
		NewTextPart("stale"),
		video,
	}}

	updated := msg.WithText("new text")

	require.Len(t, updated.Parts, 3)
	assert.Equal(t, "new text", updated.Parts[0].Text)
	assert.Equal(t, PartImage, updated.Parts[1].Kind)
	assert.Equal(t, PartVideo, updated.Parts[2].Kind)
	assert.Equal(t, RoleUser, updated.Role)
}

func TestWithTextOnPlainMessage(t *testing.T) {
	msg := NewTextMessage(RoleAssistant, "before")
	assert.Equal(t, "after", msg.WithText("after").Content)
	assert.Equal(t, "before", msg.Content, "original is untouched")
}

func TestCloneMessagesIsDeep(t *testing.T) {
	original := []Message{{
		Role:  RoleUser,
		Parts: []ContentPart{NewImagePart([]byte{1, 2, 3}, "image/png")},
	}}

	cloned := CloneMessages(original)
	cloned[0].Parts[0].Data[0] = 9

	assert.Equal(t, byte(1), original[0].Parts[0].Data[0])
}

func TestGenomeCloneIsIndependent(t *testing.T) {
	g := SingleGenome("main", []Message{NewTextMessage(RoleSystem, "seed")})
	g.Metadata["origin"] = "test"

	clone := g.Clone()
	clone.Prompts["main"][0] = NewTextMessage(RoleSystem, "mutated")
	clone.Metadata["origin"] = "changed"

	assert.Equal(t, "seed", g.Prompts["main"][0].Text())
	assert.Equal(t, "test", g.Metadata["origin"])
}

func TestPromptNamesSorted(t *testing.T) {
	g := NewGenome(map[string][]Message{
		"zeta":  nil,
		"alpha": nil,
		"mid":   nil,
	})
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, g.PromptNames())
}

func TestMergeMetadataPrecedence(t *testing.T) {
	merged := MergeMetadata(
		map[string]interface{}{"shared": "a", "onlyA": 1},
		map[string]interface{}{"shared": "b", "onlyB": 2},
	)
	assert.Equal(t, "a", merged["shared"])
	assert.Equal(t, 1, merged["onlyA"])
	assert.Equal(t, 2, merged["onlyB"])
}
