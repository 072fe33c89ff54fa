// Package biz 提供表格检索流水线的业务逻辑层。
//
//   - Indexer: 读取语料、编码并写入按语料划分的向量集合
//   - Searcher: 编码查询并在指定数据库的集合中检索
package biz
