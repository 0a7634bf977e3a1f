package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeMetadata(t *testing.T) {
	merged := MergeMetadata(
		map[string]string{"Orderid": "old", "Uploadedby": "u1"},
		map[string]string{"orderId": "new"},
	)
	assert.Equal(t, map[string]string{"orderId": "new", "Uploadedby": "u1"}, merged)
}

func TestReplacementMetadata_KeepsContentType(t *testing.T) {
	info := &ObjectInfo{ContentType: "image/png", Metadata: map[string]string{"Uploadedby": "u1"}}
	meta := replacementMetadata(info, map[string]string{"orderId": "o1"})
	assert.Equal(t, map[string]string{"Content-Type": "image/png", "Uploadedby": "u1", "orderId": "o1"}, meta)

	meta = replacementMetadata(&ObjectInfo{}, map[string]string{"orderId": "o1"})
	assert.Equal(t, map[string]string{"orderId": "o1"}, meta)
}

func TestObjectInfo_MetadataValue(t *testing.T) {
	info := ObjectInfo{Metadata: map[string]string{"Ordertemp": "abc"}}
	assert.Equal(t, "abc", info.MetadataValue("orderTemp"))
	assert.Equal(t, "", info.MetadataValue("orderId"))
}

func TestKeyHelpers(t *testing.T) {
	assert.Equal(t, "artwork/u1/a.png", normalizeKey(" /artwork/u1/a.png"))
	assert.Equal(t, "artwork/", folderPrefix("artwork"))
	assert.Equal(t, "artwork/", folderPrefix("/artwork/"))
	assert.Equal(t, "", folderPrefix(""))
}
