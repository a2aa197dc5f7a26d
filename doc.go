/*
Package hotreload is a development time live code reloading runtime based on [goloader].

A host process links the application behavior from a go object file (the module), checks every frame
whether a newer build replaced the artifact, and swaps the module in place without losing the
application state.

# Module contract

A module is one package exporting eight functions, resolved as <package>.<Name>:

	func Init(mem hotreload.Allocator)       // allocate a fresh opaque state
	func Frame()                             // one frame of work
	func Event(e *hotreload.Event)           // input from the frame driver
	func Cleanup()                           // free the opaque state
	func MemoryPointer() unsafe.Pointer      // address of the opaque state
	func MemorySize() int                    // byte size of the opaque state type
	func HotReloaded(old unsafe.Pointer)     // adopt the state of the previous generation
	func ForceRestart() bool                 // ask the host for a full reset

See testdata/game for a sample.

# Reload or reset

When the artifact's modification time changes the candidate is loaded from a private copy.
A candidate that fails to load is dropped and the running module continues. If the opaque state size
is unchanged the old state pointer is handed to HotReloaded and the old image is retired into the
[Registry], still mapped, since constant data of that image may be referenced from the state.
Otherwise, or when ForceRestart reports true, the old module is cleaned up, every retired image is
unloaded and the new module starts from Init.

# Notes

 1. The opaque state is raw memory from the host [Allocator], it must not be the only reference to a Go heap object.
 2. Host and module must agree on the layout of the state, they are built from the same source.
 3. For [goloader]'s limitation, current only exported function can link and use.
 4. The go sdk must be prepared for goloader, see the compile tool: `compile prepare` and `compile clean`.

[goloader]: https://github.com/pkujhd/goloader
*/
package hotreload
