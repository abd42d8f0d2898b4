// Package repl provides the sandstore-cli interactive shell.
//
// The shell reads statements in the familiar mongo shell form,
//
//	db.users.find({"age": {"$gt": 30}}).sort({"name": 1}).limit(5)
//	db.users.insert([{"name": "ada"}, {"name": "bob"}])
//	db.getCollectionNames()
//
// parses them into named JSON arguments and hands them to an Executor.
// History persists to ~/.sandstore/history.
package repl
