package codec

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type user struct {
	UserName string
	Age      int
}

func TestJSONCaseInsensitiveDecode(t *testing.T) {
	var u user
	require.NoError(t, JSON{}.Decode([]byte(`{"username":"alice","AGE":30}`), &u))
	assert.Equal(t, user{UserName: "alice", Age: 30}, u)
}

func TestJSONRoundTrip(t *testing.T) {
	in := user{UserName: "bob", Age: 41}
	buf, err := JSON{}.Encode(in)
	require.NoError(t, err)
	var out user
	require.NoError(t, JSON{}.Decode(buf, &out))
	assert.Equal(t, in, out)
}

func TestJSONDecodeError(t *testing.T) {
	var u user
	err := JSON{}.Decode([]byte(`"just a string"`), &u)
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestJSONEncodeError(t *testing.T) {
	_, err := JSON{}.Encode(make(chan int))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrDecode))
}

func TestMsgpackRoundTrip(t *testing.T) {
	type person struct {
		Name string `msgpack:"name"`
		Age  int    `msgpack:"age"`
	}
	in := person{Name: "Alice", Age: 30}
	buf, err := Msgpack{}.Encode(in)
	require.NoError(t, err)
	var out person
	require.NoError(t, Msgpack{}.Decode(buf, &out))
	assert.Equal(t, in, out)

	var wrong map[string]int
	assert.True(t, errors.Is(Msgpack{}.Decode([]byte{0xc1}, &wrong), ErrDecode))
}

func TestByName(t *testing.T) {
	c, ok := ByName("")
	assert.True(t, ok)
	assert.Equal(t, "json", c.Name())
	c, ok = ByName("msgpack")
	assert.True(t, ok)
	assert.Equal(t, "msgpack", c.Name())
	_, ok = ByName("xml")
	assert.False(t, ok)
}
