// Package script runs Lua build declaration files.
//
// A .atom-build.lua file is a chunk that returns a table with the same keys
// as the JSON, YAML and TOML declaration files. Unlike those formats the
// table may hold Lua functions: preBuild and postBuild hooks and
// functionMatch matchers. Functions come back from Load as *Func values and
// keep the Lua state of their script alive until the script is closed.
//
//	return {
//	  cmd = "make",
//	  args = { "all" },
//	  preBuild = function(ctx) print("building in " .. ctx.cwd) end,
//	  functionMatch = function(output)
//	    local matches = {}
//	    for file, line in output:gmatch("([%w%./_-]+):(%d+): error") do
//	      table.insert(matches, { file = file, line = line })
//	    end
//	    return matches
//	  end,
//	}
//
// Scripts run in a sandbox: only the base, table, string and math libraries
// are loaded, and dofile, loadfile, load and loadstring are removed. Every
// call into a script is bounded by a timeout.
package script
