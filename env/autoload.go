package env

// DefaultAutoloadFunction names the function a scope may declare to act as
// the reserved fallback autoloader.
const DefaultAutoloadFunction = "__$phpenv_spl_autoload"

// Autoloader loads a class on demand. Key identifies the loader for
// duplicate detection and unregistration.
type Autoloader struct {
	Key  string
	Load func(c *Context, className string)
}

// RegisterAutoloader appends a (or prepends it) to the loader chain. A
// loader whose key is already registered is ignored.
func (c *Context) RegisterAutoloader(a *Autoloader, prepend bool) bool {
	for _, cur := range c.autoloaders {
		if cur.Key == a.Key {
			return false
		}
	}
	if prepend {
		c.autoloaders = append([]*Autoloader{a}, c.autoloaders...)
	} else {
		c.autoloaders = append(c.autoloaders, a)
	}
	return true
}

// UnregisterAutoloader removes the loader with key.
func (c *Context) UnregisterAutoloader(key string) bool {
	for i, cur := range c.autoloaders {
		if cur.Key == key {
			c.autoloaders = append(c.autoloaders[:i], c.autoloaders[i+1:]...)
			return true
		}
	}
	return false
}

// Autoloaders returns the registered loaders in call order.
func (c *Context) Autoloaders() []*Autoloader {
	return append([]*Autoloader(nil), c.autoloaders...)
}

// SetDefaultAutoloader replaces the fallback loader tried after the chain.
func (c *Context) SetDefaultAutoloader(a *Autoloader) {
	c.defaultAutoloader = a
}

// DefaultAutoloader returns the fallback loader, or nil.
func (c *Context) DefaultAutoloader() *Autoloader {
	return c.defaultAutoloader
}

// functionAutoloader adapts a script function to the loader interface.
func functionAutoloader(f *FunctionEntity) *Autoloader {
	return &Autoloader{
		Key: f.LowerName(),
		Load: func(c *Context, className string) {
			f.Invoke(c, []Value{className})
		},
	}
}

// autoloadCall runs the loader chain for a class. A name already being
// autoloaded yields nil without calling any loader.
func (c *Context) autoloadCall(name, lower string) *ClassEntity {
	if !isValidClassName(name) {
		return nil
	}
	if _, busy := c.autoloading[lower]; busy {
		log.Debugf("context %d: autoload cycle on %s", c.id, name)
		return nil
	}
	c.autoloading[lower] = struct{}{}
	defer delete(c.autoloading, lower)

	for _, a := range c.Autoloaders() {
		a.Load(c, name)
		if e := c.FetchClass(name, false); e != nil {
			return e
		}
	}
	if c.defaultAutoloader != nil {
		c.defaultAutoloader.Load(c, name)
		return c.FetchClass(name, false)
	}
	return nil
}

func isValidClassName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || r == '\\' || r >= 0x80:
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
