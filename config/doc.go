// Package config 提供 PageDiag 诊断引擎的配置管理功能。
//
// 包含配置加载、校验、默认值和运行时部分更新（Patch）。
// 支持从 YAML 文件和环境变量加载配置；运行中的操作使用
// 快照式配置读取，不受并发更新影响。
package config
