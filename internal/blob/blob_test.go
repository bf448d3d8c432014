package blob

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicURLEscapesObjectPath(t *testing.T) {
	assert.Equal(t,
		"https://storage.googleapis.com/shop-images/MasterProducts%2Fmilk-2l.jpg",
		PublicURL("", "shop-images", "MasterProducts/milk-2l.jpg"))
	assert.Equal(t,
		"http://localhost:4443/b/a%20b.png",
		PublicURL("http://localhost:4443/", "b", "/a b.png"))
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "image/jpeg", ContentTypeFor("MasterProducts/coming-soon.JPG"))
	assert.Equal(t, "image/png", ContentTypeFor("x.png"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("x"))
}

func TestMemoryUpload(t *testing.T) {
	m := NewMemory("bucket")
	u, err := m.Upload(context.Background(), "MasterProducts/a.png", "image/png", strings.NewReader("png"))
	require.NoError(t, err)
	assert.Equal(t, "https://storage.googleapis.com/bucket/MasterProducts%2Fa.png", u)

	body, ct, ok := m.Object("MasterProducts/a.png")
	require.True(t, ok)
	assert.Equal(t, "png", string(body))
	assert.Equal(t, "image/png", ct)
	assert.Equal(t, 1, m.Len())
}
