package signal

import "strings"

// Global matches when the property path resolves on the global object.
func Global(path string) CheckFunc {
	return func(ctx Context) bool {
		return ctx.Env != nil && ctx.Env.Has(path)
	}
}

// NonEmpty matches when the collection at path has at least one entry.
func NonEmpty(path string) CheckFunc {
	return func(ctx Context) bool {
		return ctx.Env != nil && ctx.Env.Len(path) > 0
	}
}

// ScriptPath matches when any script src contains fragment.
func ScriptPath(fragment string) CheckFunc {
	return func(ctx Context) bool {
		if ctx.Doc == nil {
			return false
		}
		for _, src := range ctx.Doc.ScriptSources() {
			if strings.Contains(src, fragment) {
				return true
			}
		}
		return false
	}
}

// Element matches when the document contains an element for selector.
func Element(selector string) CheckFunc {
	return func(ctx Context) bool {
		return ctx.Doc != nil && ctx.Doc.Has(selector)
	}
}

// Builtin returns the built-in catalog in registration order.
//
// Extension hooks are production safe: they are globals the visitor's own
// devtools put on every page. Globals the host page's runtime publishes
// (__NEXT_DATA__, __VUE__) describe the host rather than the visitor, so
// they only run in development alongside the script-path and DOM probes.
//
// Signals that read the same extension share a Source and count as one
// piece of evidence toward confidence.
func Builtin() []Signal {
	return []Signal{
		// framework
		{ID: "react-devtools-hook", Category: CategoryFramework, Label: "react", Weight: 2, ProductionSafe: true,
			Source: "react-devtools",
			Check: Global("__REACT_DEVTOOLS_GLOBAL_HOOK__")},
		{ID: "react-devtools-renderers", Category: CategoryFramework, Label: "react", Weight: 3, ProductionSafe: true,
			Source: "react-devtools",
			Check: NonEmpty("__REACT_DEVTOOLS_GLOBAL_HOOK__.renderers")},
		{ID: "vue-devtools-hook", Category: CategoryFramework, Label: "vue", Weight: 2, ProductionSafe: true,
			Check: Global("__VUE_DEVTOOLS_GLOBAL_HOOK__")},
		{ID: "vue-global", Category: CategoryFramework, Label: "vue", Weight: 3, ProductionSafe: false,
			Check: Global("__VUE__")},
		{ID: "angular-debug-api", Category: CategoryFramework, Label: "angular", Weight: 3, ProductionSafe: false,
			Check: Global("ng.getComponent")},
		{ID: "angular-version-attr", Category: CategoryFramework, Label: "angular", Weight: 2, ProductionSafe: false,
			Check: Element("[ng-version]")},
		{ID: "svelte-devtools-hook", Category: CategoryFramework, Label: "svelte", Weight: 2, ProductionSafe: true,
			Check: Global("__SVELTE_DEVTOOLS_GLOBAL_HOOK__")},
		{ID: "preact-devtools-hook", Category: CategoryFramework, Label: "preact", Weight: 2, ProductionSafe: true,
			Check: Global("__PREACT_DEVTOOLS__")},
		{ID: "solid-devtools-hook", Category: CategoryFramework, Label: "solid", Weight: 2, ProductionSafe: true,
			Check: Global("SolidDevtools$$")},

		// meta
		{ID: "next-data", Category: CategoryMeta, Label: "next", Weight: 3, ProductionSafe: false,
			Check: Global("__NEXT_DATA__")},
		{ID: "nuxt-state", Category: CategoryMeta, Label: "nuxt", Weight: 3, ProductionSafe: false,
			Check: Global("__NUXT__")},
		{ID: "gatsby-loader", Category: CategoryMeta, Label: "gatsby", Weight: 2, ProductionSafe: false,
			Check: Global("___loader")},
		{ID: "remix-context", Category: CategoryMeta, Label: "remix", Weight: 3, ProductionSafe: false,
			Check: Global("__remixContext")},
		{ID: "next-script-path", Category: CategoryMeta, Label: "next", Weight: 2, ProductionSafe: false,
			Check: ScriptPath("/_next/static/")},
		{ID: "nuxt-script-path", Category: CategoryMeta, Label: "nuxt", Weight: 2, ProductionSafe: false,
			Check: ScriptPath("/_nuxt/")},
		{ID: "vite-client-script", Category: CategoryMeta, Label: "vite", Weight: 2, ProductionSafe: false,
			Check: ScriptPath("/@vite/client")},

		// state
		{ID: "redux-devtools-extension", Category: CategoryState, Label: "redux", Weight: 3, ProductionSafe: true,
			Source: "redux-devtools",
			Check: Global("__REDUX_DEVTOOLS_EXTENSION__")},
		{ID: "redux-devtools-compose", Category: CategoryState, Label: "redux", Weight: 1, ProductionSafe: true,
			Source: "redux-devtools",
			Check: Global("__REDUX_DEVTOOLS_EXTENSION_COMPOSE__")},
		{ID: "mobx-devtools-hook", Category: CategoryState, Label: "mobx", Weight: 3, ProductionSafe: true,
			Check: Global("__MOBX_DEVTOOLS_GLOBAL_HOOK__")},
		{ID: "vuex-devtools-store", Category: CategoryState, Label: "vuex", Weight: 3, ProductionSafe: false,
			Check: Global("__VUE_DEVTOOLS_GLOBAL_HOOK__.store")},
		{ID: "xstate-inspector", Category: CategoryState, Label: "xstate", Weight: 2, ProductionSafe: true,
			Check: Global("__xstate__")},

		// data
		{ID: "apollo-client-global", Category: CategoryData, Label: "apollo", Weight: 3, ProductionSafe: false,
			Check: Global("__APOLLO_CLIENT__")},
		{ID: "apollo-devtools-hook", Category: CategoryData, Label: "apollo", Weight: 2, ProductionSafe: true,
			Check: Global("__APOLLO_DEVTOOLS_GLOBAL_HOOK__")},
		{ID: "tanstack-query-client", Category: CategoryData, Label: "tanstack-query", Weight: 3, ProductionSafe: false,
			Check: Global("__TANSTACK_QUERY_CLIENT__")},
		{ID: "relay-devtools-hook", Category: CategoryData, Label: "relay", Weight: 2, ProductionSafe: true,
			Check: Global("__RELAY_DEVTOOLS_HOOK__")},
	}
}
