package actionlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testSQLStore(t *testing.T) *SQLStore {
	db, err := OpenDatabase("sqlite://:memory:", 1)
	if err != nil {
		t.Fatal(err)
	}
	store, err := NewSQLStore(db)
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestSQLStore(t *testing.T) {
	testStoreBasics(t, testSQLStore(t))
	testStoreCapacity(t, testSQLStore(t))
}

func TestOpenDatabaseUnknownScheme(t *testing.T) {
	assert := assert.New(t)

	_, err := OpenDatabase("mysql://localhost/latch", 1)
	assert.Error(err)
}
