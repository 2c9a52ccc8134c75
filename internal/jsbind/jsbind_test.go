package jsbind

import (
	"testing"

	"github.com/carlmjohnson/be"
	"github.com/dop251/goja"
	"github.com/synadia-io/accessorhost/internal/emitter"
)

type sample struct {
	Port int    `json:"port"`
	Host string `json:"host"`
}

func TestEmitterBinding(t *testing.T) {
	rt := goja.New()
	b := New(rt, nil)
	em := emitter.New("test", nil, nil)
	obj := rt.NewObject()
	b.Emitter(obj, em)
	be.NilErr(t, rt.Set("thing", obj))

	_, err := rt.RunString(`
		var got = [];
		function onData(d) { got.push(d); }
		thing.on('data', onData);
		thing.once('data', function(d) { got.push('once:' + d); });
	`)
	be.NilErr(t, err)
	be.Equal(t, 2, em.ListenerCount("data"))

	em.Emit("data", "a")
	em.Emit("data", "b")

	v, err := rt.RunString(`got.join(',')`)
	be.NilErr(t, err)
	be.Equal(t, "a,once:a,b", v.String())

	_, err = rt.RunString(`thing.removeListener('data', onData)`)
	be.NilErr(t, err)
	be.Equal(t, 0, em.ListenerCount("data"))
}

func TestListenerReceivesThis(t *testing.T) {
	rt := goja.New()
	b := New(rt, nil)
	em := emitter.New("test", nil, nil)
	obj := rt.NewObject()
	_ = obj.Set("name", "me")
	b.Emitter(obj, em)
	be.NilErr(t, rt.Set("thing", obj))

	_, err := rt.RunString(`var who; thing.on('open', function() { who = this.name; });`)
	be.NilErr(t, err)
	em.Emit("open")
	be.Equal(t, "me", rt.Get("who").String())
}

func TestOptions(t *testing.T) {
	rt := goja.New()
	b := New(rt, nil)
	opts := sample{Port: 80, Host: "localhost"}

	v, err := rt.RunString(`({port: 8080, extra: true})`)
	be.NilErr(t, err)
	b.Options(v, &opts)
	be.Equal(t, 8080, opts.Port)
	be.Equal(t, "localhost", opts.Host)

	b.Options(goja.Undefined(), &opts)
	be.Equal(t, 8080, opts.Port)
}

func TestOptionsThrows(t *testing.T) {
	rt := goja.New()
	b := New(rt, nil)
	_ = rt.Set("configure", func(call goja.FunctionCall) goja.Value {
		opts := sample{}
		b.Options(call.Argument(0), &opts)
		return goja.Undefined()
	})
	_, err := rt.RunString(`configure({port: "nope"})`)
	be.True(t, err != nil)
}
