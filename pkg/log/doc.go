/*
Package log provides structured logging for the file queue store using
zerolog: a global Logger, Init(Config) to configure level/output, and a
WithComponent child-logger helper so every package logs under a
consistent "component" field.
*/
package log
