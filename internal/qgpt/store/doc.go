// Package store 提供按语料划分的向量存储。
//
// 每个语料库对应一个数据库，数据库内一个集合。后端有两种：
//   - sqlite：每个数据库是一个 qgpt_*.db 文件，暴力计算距离；
//   - milvus：每个数据库是 Milvus 服务端的一个 database。
package store
