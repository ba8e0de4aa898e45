// Package cache — content-addressed кэш результатов дорогих вызовов
// (языковая модель, транскрипция).
//
// Ключ — отпечаток (SHA-256) канонической JSON-формы входа: порядок ключей
// и пробелы не влияют на отпечаток, изменение содержимого меняет его.
//
// Pipeline корректен и с пустым кэшем: любая ошибка хранилища превращается в промах, pipeline продолжает работу
// и пересчитывает результат. Check-then-compute-then-store не защищён
// блокировкой, параллельные одинаковые вычисления возможны и допустимы.
package cache
